package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no active code matches a lookup.
var ErrNotFound = errors.New("discount code not found")

// Code is a seller- or admin-issued discount code. Deactivation is soft:
// codes referenced by historical order lines are never deleted, and the
// discount amounts already snapshotted on those lines stay untouched.
type Code struct {
	ID            string
	Code          string
	Percentage    bool
	Amount        decimal.Decimal
	MinOrderValue decimal.Decimal
	Active        bool
	Provider      string
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

// Applicable reports whether the code may be applied to a new order line
// with the given subtotal at the given time. Historical snapshots are not
// affected by this check.
func (c *Code) Applicable(subtotal decimal.Decimal, now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return subtotal.GreaterThanOrEqual(c.MinOrderValue)
}

// Repository provides lookup and lifecycle operations for discount codes.
//
// MarkProvided records that a user consumed a code. It is invoked only
// after the order is confirmed paid; evaluating a code for pricing never
// consumes it. DeactivateExpired is the periodic sweep that soft-disables
// codes past their expiry.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Code, error)
	Create(ctx context.Context, c *Code) error
	MarkProvided(ctx context.Context, code, userID string) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
