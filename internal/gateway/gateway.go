// Package gateway abstracts external payment providers behind a single
// capability interface. Each adapter translates an internal payment intent
// into the provider's signed request format and normalizes inbound
// callbacks into a Result the reconciliation machine can consume without
// knowing which provider produced it.
package gateway

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Provider identifies an external payment gateway.
type Provider string

const (
	ProviderMomo  Provider = "momo"
	ProviderVnPay Provider = "vnpay"
)

var (
	// ErrBadSignature is returned when a callback's message-authentication
	// signature does not verify. The callback is untrusted input and must
	// never flip a payment state without passing verification.
	ErrBadSignature = errors.New("gateway signature mismatch")
	// ErrBadCallback is returned when a callback payload cannot be parsed.
	ErrBadCallback = errors.New("malformed gateway callback")
	// ErrRejected is returned when the provider refuses a payment-initiation
	// request with a non-success result code.
	ErrRejected = errors.New("gateway rejected payment request")
)

// Intent is the provider-agnostic payment-initiation request. TxRef is
// the order's transaction reference; it becomes the provider's order
// identifier so the asynchronous callback can be correlated back.
type Intent struct {
	TxRef     string
	Amount    decimal.Decimal
	OrderInfo string
	ReturnURL string
	NotifyURL string
}

// Result is a normalized gateway callback: did the provider report
// success, for which transaction reference, and for what amount.
type Result struct {
	Provider Provider
	Success  bool
	TxRef    string
	Amount   decimal.Decimal
	Code     string
}

// Gateway is implemented once per provider. Implementations are stateless
// except for provider configuration (merchant code, secret, endpoint).
type Gateway interface {
	Provider() Provider
	// CreatePayment builds and (where the provider requires it) submits a
	// signed payment-initiation request, returning the URL the customer is
	// redirected to.
	CreatePayment(ctx context.Context, intent Intent) (payURL string, err error)
	// ParseCallback verifies and normalizes an inbound provider callback.
	// The payload is the raw JSON body or query string, provider-dependent.
	ParseCallback(payload []byte) (*Result, error)
}

// Registry maps providers to their configured adapters.
type Registry map[Provider]Gateway

// Lookup returns the adapter for the given provider.
func (r Registry) Lookup(p Provider) (Gateway, error) {
	g, ok := r[p]
	if !ok {
		return nil, errors.Errorf("no gateway configured for provider %q", p)
	}
	return g, nil
}
