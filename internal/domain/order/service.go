package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/booktrade/internal/domain/book"
	"github.com/xenking/booktrade/internal/domain/discount"
	"github.com/xenking/booktrade/internal/domain/user"
)

// LineInput is one requested line of a checkout.
type LineInput struct {
	BookID       string
	Quantity     int
	DiscountCode string
}

// CreateRequest holds the input for building an order.
type CreateRequest struct {
	CustomerID string
	Lines      []LineInput
}

// Service assembles immutable orders from checkout input, the book
// catalog, and the discount engine. It never touches inventory: stock is
// reserved only when a payment reaches SUCCESS.
type Service struct {
	books     book.Repository
	users     user.Repository
	discounts discount.Repository
	orders    Repository
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	books book.Repository,
	users user.Repository,
	discounts discount.Repository,
	orders Repository,
) *Service {
	return &Service{
		books:     books,
		users:     users,
		discounts: discounts,
		orders:    orders,
		now:       time.Now,
	}
}

// Create validates the customer and every line, snapshots current book
// price and seller per line, applies discounts, and persists the order
// once in PENDING state with a fresh transaction reference.
//
// A discount code that does not resolve, is inactive, expired, or below
// its minimum order value is silently ignored rather than failing the
// checkout. "Book not found" aborts the whole order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}

	if _, err := s.users.GetByID(ctx, req.CustomerID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrap(err, "get customer")
	}

	now := s.now()
	lines := make([]Line, 0, len(req.Lines))
	total := decimal.Zero

	for _, in := range req.Lines {
		if in.Quantity <= 0 {
			return nil, &InvalidQuantityError{BookID: in.BookID}
		}

		b, err := s.books.GetByID(ctx, in.BookID)
		if err != nil {
			if errors.Is(err, book.ErrNotFound) {
				return nil, &BookNotFoundError{BookID: in.BookID}
			}
			return nil, errors.Wrapf(err, "get book %s", in.BookID)
		}

		subtotal := b.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))

		discountAmount, err := s.lineDiscount(ctx, in.DiscountCode, subtotal, now)
		if err != nil {
			return nil, err
		}

		lineTotal := subtotal.Sub(discountAmount)
		if lineTotal.IsNegative() {
			lineTotal = decimal.Zero
		}

		lines = append(lines, Line{
			BookID:         b.ID,
			SellerID:       b.SellerID,
			SellerName:     b.SellerName,
			BookTitle:      b.Title,
			CoverImage:     b.CoverImage,
			Price:          b.Price,
			Quantity:       in.Quantity,
			DiscountCode:   in.DiscountCode,
			DiscountAmount: discountAmount,
			TotalAmount:    lineTotal,
		})
		total = total.Add(lineTotal)
	}

	o := &Order{
		ID:         uuid.New().String(),
		TxRef:      uuid.New().String(),
		CustomerID: req.CustomerID,
		Lines:      lines,
		TotalPrice: total,
		Status:     StatusPending,
		CreatedAt:  now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// lineDiscount resolves and evaluates a discount code for one line. A
// missing or inapplicable code yields zero; only infrastructure failures
// propagate. The code is not consumed here.
func (s *Service) lineDiscount(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if code == "" {
		return decimal.Zero, nil
	}
	c, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, discount.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, errors.Wrapf(err, "find discount %s", code)
	}
	if !c.Applicable(subtotal, now) {
		return decimal.Zero, nil
	}
	return discount.Apply(c, subtotal), nil
}

// Cancel transitions an order to CANCELLED. Confirmed (paid) orders
// cannot be cancelled; they need the refund/return workflow instead.
//
// The transition is a single conditional write so a payment confirming
// the order concurrently cannot slip between the status check and the
// cancellation. Cancelling an already-cancelled order is a no-op.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	err := s.orders.TransitionStatus(ctx, orderID, StatusPending, StatusCancelled)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrStatusConflict) {
		return err
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == StatusCancelled {
		return nil
	}
	return ErrCannotCancel
}

// Get returns a single order by its identifier.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// ListByCustomer returns all orders placed by the given customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return s.orders.ListByCustomer(ctx, customerID)
}

// ListBySeller returns all orders containing at least one line sold by the
// given seller.
func (s *Service) ListBySeller(ctx context.Context, sellerID string) ([]Order, error) {
	return s.orders.ListBySeller(ctx, sellerID)
}
