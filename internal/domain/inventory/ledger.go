package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/booktrade/internal/domain/book"
	"github.com/xenking/booktrade/internal/domain/order"
)

// OutOfStockError reports which book could not cover the ordered quantity.
type OutOfStockError struct {
	BookID   string
	Quantity int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("book %s is out of stock for quantity %d", e.BookID, e.Quantity)
}

// Ledger commits and reverses the inventory effect of an order. Both
// operations key off the snapshotted book ID and quantity stored on each
// order line, which makes them safe to call long after checkout from an
// asynchronous gateway callback.
//
// Atomicity across lines is the caller's responsibility: the ledger is
// invoked inside the same transaction as the payment/order status
// transition, so a failed line rolls back every prior decrement.
type Ledger struct {
	books book.Repository
}

// NewLedger creates a Ledger over the given catalog store.
func NewLedger(books book.Repository) *Ledger {
	return &Ledger{books: books}
}

// Decrease reserves stock for every line of the order: stock -= quantity,
// sold_count += quantity. The per-book decrement is conditional on
// stock >= quantity; the first failing line aborts with OutOfStockError
// and no partial decrement survives the enclosing transaction.
func (l *Ledger) Decrease(ctx context.Context, o *order.Order) error {
	for _, ln := range o.Lines {
		err := l.books.DecrementStock(ctx, ln.BookID, ln.Quantity)
		if err != nil {
			if errors.Is(err, book.ErrInsufficientStock) {
				return &OutOfStockError{BookID: ln.BookID, Quantity: ln.Quantity}
			}
			return errors.Wrapf(err, "decrement stock for book %s", ln.BookID)
		}
	}
	return nil
}

// Reverse is the unconditional inverse of Decrease: stock += quantity,
// sold_count -= quantity per line. It assumes a prior Decrease succeeded;
// the reconciliation machine guards against calling it otherwise.
func (l *Ledger) Reverse(ctx context.Context, o *order.Order) error {
	for _, ln := range o.Lines {
		if err := l.books.IncrementStock(ctx, ln.BookID, ln.Quantity); err != nil {
			return errors.Wrapf(err, "increment stock for book %s", ln.BookID)
		}
	}
	return nil
}
