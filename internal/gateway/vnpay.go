package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// VnPayConfig holds the merchant credentials for the VNPay gateway.
type VnPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

// VnPay integrates the VNPay redirect flow: the outbound "request" is a
// signed URL (no HTTP call), built from alphabetically sorted,
// URL-encoded parameters hashed with HMAC-SHA512. Callbacks arrive as
// query parameters carrying the same hash.
type VnPay struct {
	cfg VnPayConfig
	now func() time.Time
}

// NewVnPay creates a VNPay adapter.
func NewVnPay(cfg VnPayConfig) *VnPay {
	return &VnPay{cfg: cfg, now: time.Now}
}

// Provider implements Gateway.
func (v *VnPay) Provider() Provider { return ProviderVnPay }

// CreatePayment builds the signed redirect URL. VNPay amounts are in
// hundredths of the currency unit, so the order total is multiplied by
// 100. vnp_TxnRef carries the order's transaction reference.
func (v *VnPay) CreatePayment(_ context.Context, intent Intent) (string, error) {
	returnURL := intent.ReturnURL
	if returnURL == "" {
		returnURL = v.cfg.ReturnURL
	}

	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    v.cfg.TmnCode,
		"vnp_Amount":     intent.Amount.Mul(decimal.NewFromInt(100)).Truncate(0).String(),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     intent.TxRef,
		"vnp_OrderInfo":  intent.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  returnURL,
		"vnp_IpAddr":     "127.0.0.1",
		"vnp_CreateDate": v.now().Format("20060102150405"),
	}

	query := canonicalQuery(params)
	hash := v.sign(query)
	return v.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + hash, nil
}

// ParseCallback verifies vnp_SecureHash over the sorted remaining
// parameters and normalizes the result. vnp_ResponseCode "00" denotes
// success; vnp_TxnRef is matched against the order's stored transaction
// reference, not its numeric identity.
func (v *VnPay) ParseCallback(payload []byte) (*Result, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, errors.Wrap(ErrBadCallback, err.Error())
	}

	txRef := values.Get("vnp_TxnRef")
	code := values.Get("vnp_ResponseCode")
	if txRef == "" || code == "" {
		return nil, errors.Wrap(ErrBadCallback, "missing vnp_TxnRef or vnp_ResponseCode")
	}

	got := values.Get("vnp_SecureHash")
	if got == "" {
		return nil, errors.Wrap(ErrBadSignature, "missing vnp_SecureHash")
	}

	params := make(map[string]string, len(values))
	for k := range values {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		params[k] = values.Get(k)
	}
	want := v.sign(canonicalQuery(params))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(got))) {
		return nil, ErrBadSignature
	}

	amount := decimal.Zero
	if raw := values.Get("vnp_Amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrap(ErrBadCallback, "invalid vnp_Amount")
		}
		amount = d.Div(decimal.NewFromInt(100))
	}

	return &Result{
		Provider: ProviderVnPay,
		Success:  code == "00",
		TxRef:    txRef,
		Amount:   amount,
		Code:     code,
	}, nil
}

func (v *VnPay) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(v.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery encodes params as key=value pairs joined by ampersands
// in alphabetical key order, the field ordering VNPay signs over.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if params[k] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
