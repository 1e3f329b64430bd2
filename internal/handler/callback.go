package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/booktrade/internal/domain/order"
	"github.com/xenking/booktrade/internal/gateway"
)

// vnpayAck is the acknowledgement shape VnPay's IPN expects.
type vnpayAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// MomoCallback handles the Momo IPN: a JSON body whose signature is
// verified by the adapter before any payment state can change.
func (h *Handler) MomoCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_callback", "cannot read body")
		return
	}

	res, err := h.parseCallback(r, gateway.ProviderMomo, body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.payments.HandleGatewayResult(r.Context(), *res); err != nil {
		respondError(w, r, err)
		return
	}
	// Momo treats 204 as a successfully received IPN.
	w.WriteHeader(http.StatusNoContent)
}

// VnPayCallback handles the VnPay IPN: signed query parameters. VnPay
// expects an RspCode acknowledgement body regardless of outcome.
func (h *Handler) VnPayCallback(w http.ResponseWriter, r *http.Request) {
	res, err := h.parseCallback(r, gateway.ProviderVnPay, []byte(r.URL.RawQuery))
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrBadSignature):
			writeJSON(w, http.StatusOK, vnpayAck{RspCode: "97", Message: "Invalid Checksum"})
		default:
			writeJSON(w, http.StatusOK, vnpayAck{RspCode: "99", Message: "Invalid Request"})
		}
		return
	}

	if err := h.payments.HandleGatewayResult(r.Context(), *res); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeJSON(w, http.StatusOK, vnpayAck{RspCode: "01", Message: "Order Not Found"})
			return
		}
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vnpayAck{RspCode: "00", Message: "Confirm Success"})
}

func (h *Handler) parseCallback(r *http.Request, provider gateway.Provider, payload []byte) (*gateway.Result, error) {
	gw, err := h.gateways.Lookup(provider)
	if err != nil {
		return nil, err
	}

	res, err := gw.ParseCallback(payload)
	if err != nil {
		zctx.From(r.Context()).Warn("Rejected gateway callback",
			zap.String("provider", string(provider)),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}
