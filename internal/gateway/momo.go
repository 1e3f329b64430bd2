package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const momoRequestType = "captureWallet"

// MomoConfig holds the merchant credentials for the MoMo wallet gateway.
type MomoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
}

// Momo integrates the MoMo wallet API: outbound requests are JSON POSTs
// signed with HMAC-SHA256 over a canonical ampersand-joined field string,
// and inbound IPN callbacks carry the same signature scheme.
type Momo struct {
	cfg    MomoConfig
	client *http.Client

	// newRequestID is swapped in tests to make signatures deterministic.
	newRequestID func() string
}

// NewMomo creates a MoMo adapter. A nil client falls back to
// http.DefaultClient.
func NewMomo(cfg MomoConfig, client *http.Client) *Momo {
	if client == nil {
		client = http.DefaultClient
	}
	return &Momo{cfg: cfg, client: client, newRequestID: func() string { return uuid.New().String() }}
}

// Provider implements Gateway.
func (m *Momo) Provider() Provider { return ProviderMomo }

type momoRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoResponse struct {
	ResultCode json.Number `json:"resultCode"`
	Message    string      `json:"message"`
	PayURL     string      `json:"payUrl"`
}

// CreatePayment signs and submits a payment-initiation request and returns
// the wallet redirect URL. The caller must already have recorded the
// pending payment: a callback may arrive as soon as this request is sent.
func (m *Momo) CreatePayment(ctx context.Context, intent Intent) (string, error) {
	requestID := m.newRequestID()
	amount := intent.Amount.IntPart()

	// Canonical field ordering defined by the provider; changing it breaks
	// the signature.
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		m.cfg.AccessKey, amount, "", intent.NotifyURL,
		intent.TxRef, intent.OrderInfo, m.cfg.PartnerCode, intent.ReturnURL, requestID, momoRequestType,
	)

	body, err := json.Marshal(momoRequest{
		PartnerCode: m.cfg.PartnerCode,
		AccessKey:   m.cfg.AccessKey,
		RequestID:   requestID,
		Amount:      amount,
		OrderID:     intent.TxRef,
		OrderInfo:   intent.OrderInfo,
		RedirectURL: intent.ReturnURL,
		IpnURL:      intent.NotifyURL,
		ExtraData:   "",
		RequestType: momoRequestType,
		Lang:        "vi",
		Signature:   m.sign(raw),
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal momo request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build momo request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "post momo request")
	}
	defer resp.Body.Close()

	var mr momoResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return "", errors.Wrap(err, "decode momo response")
	}
	if mr.ResultCode.String() != "0" {
		return "", errors.Wrapf(ErrRejected, "momo code %s: %s", mr.ResultCode, mr.Message)
	}
	return mr.PayURL, nil
}

// momoCallback is the IPN payload. Every field below participates in the
// provider's callback signature.
type momoCallback struct {
	PartnerCode  string      `json:"partnerCode"`
	OrderID      string      `json:"orderId"`
	RequestID    string      `json:"requestId"`
	Amount       int64       `json:"amount"`
	OrderInfo    string      `json:"orderInfo"`
	OrderType    string      `json:"orderType"`
	TransID      json.Number `json:"transId"`
	ResultCode   json.Number `json:"resultCode"`
	Message      string      `json:"message"`
	PayType      string      `json:"payType"`
	ResponseTime json.Number `json:"responseTime"`
	ExtraData    string      `json:"extraData"`
	Signature    string      `json:"signature"`
}

// ParseCallback verifies the IPN signature and normalizes the result.
// resultCode "0" denotes success; orderId carries the transaction
// reference the payment was created with.
func (m *Momo) ParseCallback(payload []byte) (*Result, error) {
	var cb momoCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, errors.Wrap(ErrBadCallback, err.Error())
	}
	if cb.OrderID == "" || cb.ResultCode.String() == "" {
		return nil, errors.Wrap(ErrBadCallback, "missing orderId or resultCode")
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%s&resultCode=%s&transId=%s",
		m.cfg.AccessKey, cb.Amount, cb.ExtraData, cb.Message, cb.OrderID, cb.OrderInfo,
		cb.OrderType, cb.PartnerCode, cb.PayType, cb.RequestID, cb.ResponseTime, cb.ResultCode, cb.TransID,
	)
	if !hmac.Equal([]byte(m.sign(raw)), []byte(cb.Signature)) {
		return nil, ErrBadSignature
	}

	return &Result{
		Provider: ProviderMomo,
		Success:  cb.ResultCode.String() == "0",
		TxRef:    cb.OrderID,
		Amount:   decimal.NewFromInt(cb.Amount),
		Code:     cb.ResultCode.String(),
	}, nil
}

func (m *Momo) sign(data string) string {
	mac := hmac.New(sha256.New, []byte(m.cfg.SecretKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
