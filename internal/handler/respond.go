package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/booktrade/internal/domain/auth"
	"github.com/xenking/booktrade/internal/domain/book"
	"github.com/xenking/booktrade/internal/domain/inventory"
	"github.com/xenking/booktrade/internal/domain/order"
	"github.com/xenking/booktrade/internal/domain/payment"
	"github.com/xenking/booktrade/internal/domain/user"
	"github.com/xenking/booktrade/internal/gateway"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}

// respondError maps domain errors onto HTTP statuses. Infrastructure
// failures are logged and answered with a generic 500 so internals do
// not leak to clients.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bookNotFound *order.BookNotFoundError
		badQuantity  *order.InvalidQuantityError
		outOfStock   *inventory.OutOfStockError
	)

	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, book.ErrNotFound):
		writeError(w, http.StatusNotFound, "book_not_found", err.Error())
	case errors.Is(err, payment.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.As(err, &bookNotFound):
		writeError(w, http.StatusNotFound, "book_not_found", err.Error())
	case errors.Is(err, order.ErrCannotCancel):
		writeError(w, http.StatusConflict, "cannot_cancel", err.Error())
	case errors.Is(err, payment.ErrPaymentExists):
		writeError(w, http.StatusConflict, "payment_exists", err.Error())
	case errors.Is(err, order.ErrEmptyLines):
		writeError(w, http.StatusUnprocessableEntity, "empty_order", err.Error())
	case errors.As(err, &badQuantity):
		writeError(w, http.StatusUnprocessableEntity, "invalid_quantity", err.Error())
	case errors.As(err, &outOfStock):
		writeError(w, http.StatusUnprocessableEntity, "out_of_stock", err.Error())
	case errors.Is(err, gateway.ErrBadSignature):
		writeError(w, http.StatusBadRequest, "bad_signature", err.Error())
	case errors.Is(err, gateway.ErrBadCallback):
		writeError(w, http.StatusBadRequest, "bad_callback", err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
