// Package handler exposes the HTTP transport: JSON order and payment
// endpoints plus the provider callback routes.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/booktrade/internal/domain/book"
	"github.com/xenking/booktrade/internal/domain/order"
	"github.com/xenking/booktrade/internal/domain/payment"
	"github.com/xenking/booktrade/internal/gateway"
)

// Handler wires the domain services to their HTTP routes.
type Handler struct {
	books    book.Repository
	orders   *order.Service
	payments *payment.Service
	gateways gateway.Registry
	security *Security
}

// NewHandler constructs a Handler with the required domain dependencies.
// security may be nil, in which case all routes are left open (tests).
func NewHandler(
	books book.Repository,
	orders *order.Service,
	payments *payment.Service,
	gateways gateway.Registry,
	security *Security,
) *Handler {
	return &Handler{
		books:    books,
		orders:   orders,
		payments: payments,
		gateways: gateways,
		security: security,
	}
}

// Routes builds the chi router. Callback routes are authenticated by the
// provider signature inside the gateway adapters, not by API key.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.security != nil {
				r.Use(h.security.RequireAPIKey)
			}

			r.Get("/books", h.ListBooks)
			r.Get("/books/{id}", h.GetBook)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
			r.Get("/customers/{id}/orders", h.ListCustomerOrders)
			r.Get("/sellers/{id}/orders", h.ListSellerOrders)

			r.Post("/payments", h.CreatePayment)
			r.Get("/payments/{id}", h.GetPayment)
			r.Post("/payments/{id}/confirm", h.ConfirmPayment)
			r.Post("/payments/gateway", h.CreateGatewayPayment)
		})

		r.Post("/callbacks/momo", h.MomoCallback)
		r.Get("/callbacks/vnpay", h.VnPayCallback)
	})

	return r
}
