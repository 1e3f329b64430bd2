package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/booktrade/internal/gateway"
)

// Status is the payment lifecycle state. PENDING is the only non-terminal
// state; once SUCCESS or FAILED is reached no further transition is
// permitted.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Method identifies how a payment is settled.
type Method string

const (
	MethodCOD   Method = "COD"
	MethodMomo  Method = "MOMO"
	MethodVnPay Method = "VNPAY"
)

// GatewayProvider maps a method to its external gateway, if any. COD has
// no gateway: it is confirmed through the internal trust path.
func (m Method) GatewayProvider() (gateway.Provider, bool) {
	switch m {
	case MethodMomo:
		return gateway.ProviderMomo, true
	case MethodVnPay:
		return gateway.ProviderVnPay, true
	default:
		return "", false
	}
}

// MethodForProvider is the inverse of GatewayProvider.
func MethodForProvider(p gateway.Provider) (Method, bool) {
	switch p {
	case gateway.ProviderMomo:
		return MethodMomo, true
	case gateway.ProviderVnPay:
		return MethodVnPay, true
	default:
		return "", false
	}
}

var (
	// ErrNotFound is returned when a requested payment does not exist.
	ErrNotFound = errors.New("payment not found")
	// ErrPaymentExists is returned when an order already has a non-terminal
	// payment. At most one may exist per order at any time.
	ErrPaymentExists = errors.New("order already has a pending payment")
)

// Payment settles exactly one order. Amount is the post-discount total
// stored independently at creation time, never re-derived from the order.
type Payment struct {
	ID        string
	OrderID   string
	Amount    decimal.Decimal
	Method    Method
	Status    Status
	Accepted  bool
	CreatedAt time.Time
}

// Repository defines persistence operations for payments. The Lock
// variants select the row FOR UPDATE and must run inside a context-bound
// transaction; they are what makes the check-then-act idempotency
// discipline race-free between near-simultaneous duplicate callbacks.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	LockByID(ctx context.Context, id string) (*Payment, error)
	LockByOrderID(ctx context.Context, orderID string) (*Payment, error)
	UpdateStatus(ctx context.Context, id string, status Status, accepted bool) error
	ExistsNonTerminal(ctx context.Context, orderID string) (bool, error)
}
