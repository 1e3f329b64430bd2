package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. CONFIRMED and CANCELLED are
// terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Sentinel errors for order validation and lifecycle rules.
var (
	ErrEmptyLines   = errors.New("order lines required")
	ErrCannotCancel = errors.New("confirmed orders cannot be cancelled")
	ErrNotFound     = errors.New("order not found")

	// ErrStatusConflict is returned by Repository.TransitionStatus when
	// the stored status no longer matches the expected one.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// BookNotFoundError indicates a requested book does not exist. The whole
// order is aborted; there are no partial orders.
type BookNotFoundError struct {
	BookID string
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book %s not found", e.BookID)
}

// InvalidQuantityError indicates a line has a non-positive quantity.
type InvalidQuantityError struct {
	BookID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for book %s", e.BookID)
}

// Line is an immutable snapshot of one book at order-creation time. It is
// never a live reference: price, title and seller are copied so later
// catalog changes cannot alter historical totals, and inventory
// operations key off BookID/Quantity long after checkout.
type Line struct {
	BookID         string
	SellerID       string
	SellerName     string
	BookTitle      string
	CoverImage     string
	Price          decimal.Decimal
	Quantity       int
	DiscountCode   string
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Order is the priced, immutable result of a checkout. TxRef is the
// globally unique token correlating gateway callbacks back to this order;
// it is generated once at creation and never reused.
type Order struct {
	ID         string
	TxRef      string
	CustomerID string
	Lines      []Line
	TotalPrice decimal.Decimal
	Status     Status
	Paid       bool
	CreatedAt  time.Time
}

// Repository defines persistence operations for orders. Create persists
// the order and its line snapshots atomically. UpdateStatus, SetPaid and
// TransitionStatus participate in a context-bound transaction when one
// is present.
//
// TransitionStatus atomically moves an order from one status to another.
// It writes the row only when the stored status equals from, so the
// check and the write cannot race; a mismatch yields ErrStatusConflict
// and a missing order ErrNotFound.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByTxRef(ctx context.Context, txRef string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	TransitionStatus(ctx context.Context, id string, from, to Status) error
	SetPaid(ctx context.Context, id string, paid bool) error
}
