package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/booktrade/internal/domain/payment"
	"github.com/xenking/booktrade/internal/gateway"
)

// CreatePaymentRequest records a payment against an order.
type CreatePaymentRequest struct {
	OrderID        string          `json:"orderId"`
	Method         payment.Method  `json:"method"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// CreateGatewayPaymentRequest initiates an external gateway payment.
type CreateGatewayPaymentRequest struct {
	OrderID   string           `json:"orderId"`
	Provider  gateway.Provider `json:"provider"`
	ReturnURL string           `json:"returnUrl"`
	NotifyURL string           `json:"notifyUrl"`
}

// GatewayPaymentResponse carries the redirect URL plus the pending payment.
type GatewayPaymentResponse struct {
	PayURL  string          `json:"payUrl"`
	Payment PaymentResponse `json:"payment"`
}

// PaymentResponse is the external representation of a payment.
type PaymentResponse struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Method    payment.Method  `json:"method"`
	Status    payment.Status  `json:"status"`
	Accepted  bool            `json:"accepted"`
	CreatedAt string          `json:"createdAt"`
}

// CreatePayment records a PENDING payment for an order.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.OrderID == "" || req.Method == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "orderId and method are required")
		return
	}

	p, err := h.payments.Create(r.Context(), req.OrderID, req.Method, req.DiscountAmount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapPayment(p))
}

// GetPayment returns a single payment by its identifier.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPayment(p))
}

// ConfirmPayment settles a payment through the internal trust path.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.Confirm(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateGatewayPayment records a PENDING payment and returns the
// provider redirect URL for the customer.
func (h *Handler) CreateGatewayPayment(w http.ResponseWriter, r *http.Request) {
	var req CreateGatewayPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.OrderID == "" || req.Provider == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "orderId and provider are required")
		return
	}

	payURL, p, err := h.payments.CreateGatewayPayment(r.Context(), req.OrderID, req.Provider, req.ReturnURL, req.NotifyURL)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, GatewayPaymentResponse{
		PayURL:  payURL,
		Payment: mapPayment(p),
	})
}

func mapPayment(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Method:    p.Method,
		Status:    p.Status,
		Accepted:  p.Accepted,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
}
