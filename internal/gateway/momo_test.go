package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMomoConfig(endpoint string) MomoConfig {
	return MomoConfig{
		PartnerCode: "BOOKTRADE",
		AccessKey:   "access-key",
		SecretKey:   "secret-key",
		Endpoint:    endpoint,
	}
}

func TestMomoCreatePayment(t *testing.T) {
	var received momoRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resultCode": 0,
			"message":    "Success",
			"payUrl":     "https://pay.momo.vn/redirect/abc",
		})
	}))
	defer srv.Close()

	m := NewMomo(testMomoConfig(srv.URL), srv.Client())
	m.newRequestID = func() string { return "req-1" }

	payURL, err := m.CreatePayment(context.Background(), Intent{
		TxRef:     "tx-1",
		Amount:    decimal.NewFromInt(230000),
		OrderInfo: "booktrade order o1",
		ReturnURL: "https://shop.example.com/return",
		NotifyURL: "https://shop.example.com/ipn",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://pay.momo.vn/redirect/abc", payURL)

	assert.Equal(t, "BOOKTRADE", received.PartnerCode)
	assert.Equal(t, "req-1", received.RequestID)
	assert.Equal(t, int64(230000), received.Amount)
	assert.Equal(t, "tx-1", received.OrderID)
	assert.Equal(t, "captureWallet", received.RequestType)

	wantRaw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		"access-key", 230000, "https://shop.example.com/ipn", "tx-1", "booktrade order o1",
		"BOOKTRADE", "https://shop.example.com/return", "req-1", "captureWallet",
	)
	assert.Equal(t, m.sign(wantRaw), received.Signature)
}

func TestMomoCreatePayment_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resultCode": 41,
			"message":    "Duplicate orderId",
		})
	}))
	defer srv.Close()

	m := NewMomo(testMomoConfig(srv.URL), srv.Client())

	_, err := m.CreatePayment(context.Background(), Intent{
		TxRef:  "tx-1",
		Amount: decimal.NewFromInt(1000),
	})
	require.ErrorIs(t, err, ErrRejected)
}

func signedMomoCallback(t *testing.T, m *Momo, resultCode string) []byte {
	t.Helper()

	cb := momoCallback{
		PartnerCode:  "BOOKTRADE",
		OrderID:      "tx-1",
		RequestID:    "req-1",
		Amount:       230000,
		OrderInfo:    "booktrade order o1",
		OrderType:    "momo_wallet",
		TransID:      json.Number("4001234567"),
		ResultCode:   json.Number(resultCode),
		Message:      "Thành công.",
		PayType:      "qr",
		ResponseTime: json.Number("1700000000000"),
		ExtraData:    "",
	}
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%s&resultCode=%s&transId=%s",
		m.cfg.AccessKey, cb.Amount, cb.ExtraData, cb.Message, cb.OrderID, cb.OrderInfo,
		cb.OrderType, cb.PartnerCode, cb.PayType, cb.RequestID, cb.ResponseTime, cb.ResultCode, cb.TransID,
	)
	cb.Signature = m.sign(raw)

	payload, err := json.Marshal(cb)
	require.NoError(t, err)
	return payload
}

func TestMomoParseCallback_Success(t *testing.T) {
	m := NewMomo(testMomoConfig("https://example.com"), nil)

	res, err := m.ParseCallback(signedMomoCallback(t, m, "0"))
	require.NoError(t, err)

	assert.Equal(t, ProviderMomo, res.Provider)
	assert.True(t, res.Success)
	assert.Equal(t, "tx-1", res.TxRef)
	assert.True(t, decimal.NewFromInt(230000).Equal(res.Amount))
	assert.Equal(t, "0", res.Code)
}

func TestMomoParseCallback_Failure(t *testing.T) {
	m := NewMomo(testMomoConfig("https://example.com"), nil)

	res, err := m.ParseCallback(signedMomoCallback(t, m, "1006"))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "1006", res.Code)
}

func TestMomoParseCallback_BadSignature(t *testing.T) {
	m := NewMomo(testMomoConfig("https://example.com"), nil)

	payload := signedMomoCallback(t, m, "0")

	var tampered map[string]any
	require.NoError(t, json.Unmarshal(payload, &tampered))
	tampered["amount"] = 1
	payload, err := json.Marshal(tampered)
	require.NoError(t, err)

	_, err = m.ParseCallback(payload)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestMomoParseCallback_Malformed(t *testing.T) {
	m := NewMomo(testMomoConfig("https://example.com"), nil)

	_, err := m.ParseCallback([]byte("not json"))
	require.ErrorIs(t, err, ErrBadCallback)

	_, err = m.ParseCallback([]byte(`{"orderId":""}`))
	require.ErrorIs(t, err, ErrBadCallback)
}
