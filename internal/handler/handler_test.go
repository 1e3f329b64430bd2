package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/booktrade/internal/domain/auth"
	"github.com/xenking/booktrade/internal/domain/book"
	"github.com/xenking/booktrade/internal/domain/discount"
	"github.com/xenking/booktrade/internal/domain/inventory"
	"github.com/xenking/booktrade/internal/domain/order"
	"github.com/xenking/booktrade/internal/domain/payment"
	"github.com/xenking/booktrade/internal/domain/user"
	"github.com/xenking/booktrade/internal/gateway"
)

// --- In-memory repositories ---

type memBooks struct {
	byID map[string]*book.Book
}

func (m *memBooks) GetByID(_ context.Context, id string) (*book.Book, error) {
	b, ok := m.byID[id]
	if !ok {
		return nil, book.ErrNotFound
	}
	return b, nil
}

func (m *memBooks) List(_ context.Context) ([]book.Book, error) {
	out := make([]book.Book, 0, len(m.byID))
	for _, b := range m.byID {
		out = append(out, *b)
	}
	return out, nil
}

func (m *memBooks) DecrementStock(_ context.Context, id string, qty int) error {
	b, ok := m.byID[id]
	if !ok {
		return book.ErrNotFound
	}
	if b.Stock < qty {
		return book.ErrInsufficientStock
	}
	b.Stock -= qty
	b.SoldCount += qty
	return nil
}

func (m *memBooks) IncrementStock(_ context.Context, id string, qty int) error {
	b, ok := m.byID[id]
	if !ok {
		return book.ErrNotFound
	}
	b.Stock += qty
	b.SoldCount -= qty
	return nil
}

type memUsers struct {
	byID map[string]*user.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) FindByLogin(_ context.Context, _ string) (*user.User, error) {
	return nil, user.ErrNotFound
}

type memDiscounts struct{}

func (memDiscounts) FindByCode(_ context.Context, _ string) (*discount.Code, error) {
	return nil, discount.ErrNotFound
}
func (memDiscounts) Create(_ context.Context, _ *discount.Code) error  { return nil }
func (memDiscounts) MarkProvided(_ context.Context, _, _ string) error { return nil }
func (memDiscounts) DeactivateExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type memOrders struct {
	byID map[string]*order.Order
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.byID[o.ID] = o
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) GetByTxRef(_ context.Context, txRef string) (*order.Order, error) {
	for _, o := range m.byID {
		if o.TxRef == txRef {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.byID {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) ListBySeller(_ context.Context, _ string) ([]order.Order, error) {
	return nil, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *memOrders) TransitionStatus(_ context.Context, id string, from, to order.Status) error {
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	return nil
}

func (m *memOrders) SetPaid(_ context.Context, id string, paid bool) error {
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Paid = paid
	return nil
}

type memPayments struct {
	byID map[string]*payment.Payment
}

func (m *memPayments) Create(_ context.Context, p *payment.Payment) error {
	m.byID[p.ID] = p
	return nil
}

func (m *memPayments) GetByID(_ context.Context, id string) (*payment.Payment, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

func (m *memPayments) GetByOrderID(_ context.Context, orderID string) (*payment.Payment, error) {
	for _, p := range m.byID {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, payment.ErrNotFound
}

func (m *memPayments) LockByID(ctx context.Context, id string) (*payment.Payment, error) {
	return m.GetByID(ctx, id)
}

func (m *memPayments) LockByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return m.GetByOrderID(ctx, orderID)
}

func (m *memPayments) UpdateStatus(_ context.Context, id string, status payment.Status, accepted bool) error {
	p, ok := m.byID[id]
	if !ok {
		return payment.ErrNotFound
	}
	p.Status = status
	p.Accepted = accepted
	return nil
}

func (m *memPayments) ExistsNonTerminal(_ context.Context, orderID string) (bool, error) {
	for _, p := range m.byID {
		if p.OrderID == orderID && !p.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

type passTx struct{}

func (passTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- Test server ---

func newTestServer(t *testing.T) (*httptest.Server, *memBooks, *memOrders) {
	t.Helper()

	books := &memBooks{byID: map[string]*book.Book{
		"b1": {
			ID: "b1", Title: "The Name of the Wind", Format: book.FormatPaperback,
			Price: decimal.NewFromInt(100000), Stock: 5,
			SellerID: "seller-1", SellerName: "Pages & Co",
		},
	}}
	users := &memUsers{byID: map[string]*user.User{
		"customer-1": {ID: "customer-1", Username: "alice", Role: user.RoleCustomer},
	}}
	orders := &memOrders{byID: make(map[string]*order.Order)}
	payments := &memPayments{byID: make(map[string]*payment.Payment)}
	discounts := memDiscounts{}

	gateways := gateway.Registry{
		gateway.ProviderVnPay: gateway.NewVnPay(gateway.VnPayConfig{
			TmnCode:    "BOOKTRD1",
			HashSecret: "hash-secret",
			PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		}),
	}

	orderSvc := order.NewService(books, users, discounts, orders)
	paymentSvc := payment.NewService(payments, orders, inventory.NewLedger(books), discounts, gateways, passTx{})

	h := NewHandler(books, orderSvc, paymentSvc, gateways, nil)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, books, orders
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

// --- Tests ---

func TestCreateOrder_OK(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/orders", CreateOrderRequest{
		CustomerID: "customer-1",
		Lines:      []OrderLineRequest{{BookID: "b1", Quantity: 2}},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var o OrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, decimal.NewFromInt(200000).Equal(o.TotalPrice))
	assert.NotEmpty(t, o.TxRef)
}

func TestCreateOrder_UnknownBook(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/orders", CreateOrderRequest{
		CustomerID: "customer-1",
		Lines:      []OrderLineRequest{{BookID: "nope", Quantity: 1}},
	})

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "book_not_found", decodeError(t, resp).Code)
}

func TestCreateOrder_InvalidJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", decodeError(t, resp).Code)
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/orders", CreateOrderRequest{
		CustomerID: "customer-1",
		Lines:      []OrderLineRequest{{BookID: "b1", Quantity: -1}},
	})

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_quantity", decodeError(t, resp).Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/orders/nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "order_not_found", decodeError(t, resp).Code)
}

func TestCancelOrder_Confirmed(t *testing.T) {
	srv, _, orders := newTestServer(t)
	orders.byID["o1"] = &order.Order{ID: "o1", Status: order.StatusConfirmed}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/orders/o1/cancel", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "cannot_cancel", decodeError(t, resp).Code)
}

func TestPaymentFlow_CODConfirm(t *testing.T) {
	srv, books, orders := newTestServer(t)

	// Checkout.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/orders", CreateOrderRequest{
		CustomerID: "customer-1",
		Lines:      []OrderLineRequest{{BookID: "b1", Quantity: 2}},
	})
	var o OrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	resp.Body.Close()

	// Record the COD payment.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payments", CreatePaymentRequest{
		OrderID: o.ID,
		Method:  payment.MethodCOD,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p PaymentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	resp.Body.Close()
	assert.Equal(t, payment.StatusPending, p.Status)

	// A second pending payment is rejected.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payments", CreatePaymentRequest{
		OrderID: o.ID,
		Method:  payment.MethodMomo,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "payment_exists", decodeError(t, resp).Code)

	// Confirm via the internal trust path.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payments/"+p.ID+"/confirm", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, order.StatusConfirmed, orders.byID[o.ID].Status)
	assert.True(t, orders.byID[o.ID].Paid)
	assert.Equal(t, 3, books.byID["b1"].Stock)
}

func TestGetPayment_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/payments/nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "payment_not_found", decodeError(t, resp).Code)
}

func TestVnPayCallback_BadSignature(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/callbacks/vnpay?vnp_TxnRef=tx-1&vnp_ResponseCode=00&vnp_SecureHash=deadbeef")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack vnpayAck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, "97", ack.RspCode)
}

func TestMomoCallback_UnknownGateway(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// The test registry has no momo adapter configured.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/callbacks/momo", map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// --- Security middleware ---

type memKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	k, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return k, nil
}

func TestRequireAPIKey(t *testing.T) {
	pepper := []byte("pepper")
	hash := auth.HashKey(pepper, "valid-key")
	keys := &memKeys{byHash: map[string]*auth.APIKeyInfo{
		hash: {ID: "k1", KeyHash: hash, Name: "test"},
	}}
	sec := NewSecurity(keys, pepper, nil)

	var reached bool
	wrapped := sec.RequireAPIKey(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	// Missing key.
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/o1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)

	// Wrong key.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/o1", nil)
	req.Header.Set(APIKeyHeader, "wrong-key")
	wrapped.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)

	// Valid key.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/orders/o1", nil)
	req.Header.Set(APIKeyHeader, "valid-key")
	wrapped.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}
