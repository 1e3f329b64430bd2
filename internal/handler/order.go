package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/booktrade/internal/domain/order"
)

// CreateOrderRequest is the checkout input.
type CreateOrderRequest struct {
	CustomerID string             `json:"customerId"`
	Lines      []OrderLineRequest `json:"lines"`
}

// OrderLineRequest is one requested line of a checkout.
type OrderLineRequest struct {
	BookID       string `json:"bookId"`
	Quantity     int    `json:"quantity"`
	DiscountCode string `json:"discountCode,omitempty"`
}

// OrderResponse is the external representation of an order.
type OrderResponse struct {
	ID         string              `json:"id"`
	TxRef      string              `json:"txRef"`
	CustomerID string              `json:"customerId"`
	Lines      []OrderLineResponse `json:"lines"`
	TotalPrice decimal.Decimal     `json:"totalPrice"`
	Status     order.Status        `json:"status"`
	Paid       bool                `json:"paid"`
	CreatedAt  string              `json:"createdAt"`
}

// OrderLineResponse is the snapshot of one order line.
type OrderLineResponse struct {
	BookID         string          `json:"bookId"`
	SellerID       string          `json:"sellerId"`
	SellerName     string          `json:"sellerName"`
	BookTitle      string          `json:"bookTitle"`
	CoverImage     string          `json:"coverImage,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	DiscountCode   string          `json:"discountCode,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
}

// CreateOrder builds a priced PENDING order from the checkout input.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "customerId is required")
		return
	}

	lines := make([]order.LineInput, 0, len(req.Lines))
	for _, ln := range req.Lines {
		lines = append(lines, order.LineInput{
			BookID:       ln.BookID,
			Quantity:     ln.Quantity,
			DiscountCode: ln.DiscountCode,
		})
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerID: req.CustomerID,
		Lines:      lines,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrder(o))
}

// GetOrder returns a single order by its identifier.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(o))
}

// CancelOrder cancels a not-yet-confirmed order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCustomerOrders returns all orders placed by a customer.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrders(orders))
}

// ListSellerOrders returns all orders containing the seller's lines.
func (h *Handler) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListBySeller(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrders(orders))
}

func mapOrder(o *order.Order) OrderResponse {
	lines := make([]OrderLineResponse, len(o.Lines))
	for i, ln := range o.Lines {
		lines[i] = OrderLineResponse{
			BookID:         ln.BookID,
			SellerID:       ln.SellerID,
			SellerName:     ln.SellerName,
			BookTitle:      ln.BookTitle,
			CoverImage:     ln.CoverImage,
			Price:          ln.Price,
			Quantity:       ln.Quantity,
			DiscountCode:   ln.DiscountCode,
			DiscountAmount: ln.DiscountAmount,
			TotalAmount:    ln.TotalAmount,
		}
	}
	return OrderResponse{
		ID:         o.ID,
		TxRef:      o.TxRef,
		CustomerID: o.CustomerID,
		Lines:      lines,
		TotalPrice: o.TotalPrice,
		Status:     o.Status,
		Paid:       o.Paid,
		CreatedAt:  o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func mapOrders(orders []order.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = mapOrder(&orders[i])
	}
	return out
}
