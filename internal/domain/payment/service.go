package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/booktrade/internal/domain/inventory"
	"github.com/xenking/booktrade/internal/domain/order"
	"github.com/xenking/booktrade/internal/gateway"
)

// TxRunner executes fn inside a single storage transaction. Repositories
// called with the context passed to fn participate in that transaction;
// an error from fn rolls everything back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockLedger commits or reverses the inventory effect of an order.
type StockLedger interface {
	Decrease(ctx context.Context, o *order.Order) error
	Reverse(ctx context.Context, o *order.Order) error
}

// CodeConsumer records that a customer consumed a discount code. Invoked
// only once an order is confirmed paid.
type CodeConsumer interface {
	MarkProvided(ctx context.Context, code, userID string) error
}

// Service is the payment reconciliation state machine. It consumes
// normalized gateway results and internal confirmations, decides state
// transitions, and applies order status and inventory side effects.
//
// Every externally triggered transition re-checks the current payment
// status under a row lock inside the same transaction as the mutation,
// so duplicated or out-of-order callbacks apply their effects at most
// once.
type Service struct {
	payments  Repository
	orders    order.Repository
	ledger    StockLedger
	discounts CodeConsumer
	gateways  gateway.Registry
	tx        TxRunner
	now       func() time.Time
}

// NewService creates a payment Service with the required dependencies.
func NewService(
	payments Repository,
	orders order.Repository,
	ledger StockLedger,
	discounts CodeConsumer,
	gateways gateway.Registry,
	tx TxRunner,
) *Service {
	return &Service{
		payments:  payments,
		orders:    orders,
		ledger:    ledger,
		discounts: discounts,
		gateways:  gateways,
		tx:        tx,
		now:       time.Now,
	}
}

// Create records a PENDING payment for an order. The amount is the
// order's total minus an optional payment-level discount (a coupon
// entered at the payment step), floored at zero and stored
// independently. At most one non-terminal payment may exist per order.
func (s *Service) Create(ctx context.Context, orderID string, method Method, discountAmount decimal.Decimal) (*Payment, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	exists, err := s.payments.ExistsNonTerminal(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "check pending payment")
	}
	if exists {
		return nil, ErrPaymentExists
	}

	amount := o.TotalPrice.Sub(discountAmount)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	p := &Payment{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		Amount:    amount,
		Method:    method,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}
	return p, nil
}

// Get returns a single payment by its identifier.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// Confirm is the internal trust path (e.g. cash on delivery): the payment
// transitions to SUCCESS, the order to CONFIRMED, and stock is decreased.
// Confirming an already-terminal payment is a no-op.
func (s *Service) Confirm(ctx context.Context, paymentID string) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.LockByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return nil
		}
		return s.succeed(ctx, p)
	})
	return s.settleOutOfStock(ctx, err, paymentID)
}

// HandleGatewayResult reconciles a normalized gateway callback. An
// unrecognized transaction reference is rejected with order.ErrNotFound
// and performs no mutation. A callback for an already-terminal payment is
// a no-op. Success confirms the order and decreases stock exactly once;
// failure cancels the order and reverses stock only when a prior
// decrease had actually occurred.
func (s *Service) HandleGatewayResult(ctx context.Context, res gateway.Result) error {
	o, err := s.orders.GetByTxRef(ctx, res.TxRef)
	if err != nil {
		return err
	}

	var paymentID string
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.LockByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}
		paymentID = p.ID
		if p.Status.Terminal() {
			return nil
		}

		if !res.Amount.IsZero() && !res.Amount.Equal(p.Amount) {
			zctx.From(ctx).Warn("Gateway amount differs from recorded payment",
				zap.String("payment_id", p.ID),
				zap.String("recorded", p.Amount.String()),
				zap.String("reported", res.Amount.String()),
			)
		}

		if res.Success {
			return s.succeed(ctx, p)
		}
		return s.fail(ctx, p)
	})
	return s.settleOutOfStock(ctx, err, paymentID)
}

// CreateGatewayPayment durably records a PENDING payment and then builds
// the provider's signed payment-initiation request. The pending record
// always exists before the outbound request: a callback arriving before
// the local record would otherwise be a lost reconciliation. A transport
// failure leaves the payment PENDING for later reconciliation.
func (s *Service) CreateGatewayPayment(ctx context.Context, orderID string, provider gateway.Provider, returnURL, notifyURL string) (string, *Payment, error) {
	gw, err := s.gateways.Lookup(provider)
	if err != nil {
		return "", nil, err
	}
	method, ok := MethodForProvider(provider)
	if !ok {
		return "", nil, errors.Errorf("provider %q has no payment method", provider)
	}

	p, err := s.Create(ctx, orderID, method, decimal.Zero)
	if err != nil {
		return "", nil, err
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", nil, err
	}

	payURL, err := gw.CreatePayment(ctx, gateway.Intent{
		TxRef:     o.TxRef,
		Amount:    p.Amount,
		OrderInfo: fmt.Sprintf("booktrade order %s", o.ID),
		ReturnURL: returnURL,
		NotifyURL: notifyURL,
	})
	if err != nil {
		return "", p, errors.Wrapf(err, "initiate %s payment", provider)
	}
	return payURL, p, nil
}

// succeed applies the SUCCESS transition: order CONFIRMED+paid, stock
// decreased, payment SUCCESS+accepted, discount codes consumed. Runs
// inside the caller's transaction.
//
// The order is claimed first with a conditional PENDING to CONFIRMED
// write. That write locks the order row, so a cancellation running
// concurrently either already won (the claim conflicts and the payment
// fails without touching stock) or waits for this transaction and then
// sees CONFIRMED.
func (s *Service) succeed(ctx context.Context, p *Payment) error {
	o, err := s.orders.GetByID(ctx, p.OrderID)
	if err != nil {
		return err
	}

	err = s.orders.TransitionStatus(ctx, o.ID, order.StatusPending, order.StatusConfirmed)
	if errors.Is(err, order.ErrStatusConflict) {
		zctx.From(ctx).Warn("Payment succeeded for an order that is no longer pending",
			zap.String("payment_id", p.ID),
			zap.String("order_id", o.ID),
		)
		if err := s.payments.UpdateStatus(ctx, p.ID, StatusFailed, false); err != nil {
			return errors.Wrap(err, "update payment status")
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "confirm order")
	}

	if err := s.ledger.Decrease(ctx, o); err != nil {
		return err
	}
	if err := s.payments.UpdateStatus(ctx, p.ID, StatusSuccess, true); err != nil {
		return errors.Wrap(err, "update payment status")
	}
	if err := s.orders.SetPaid(ctx, o.ID, true); err != nil {
		return errors.Wrap(err, "mark order paid")
	}

	for _, ln := range o.Lines {
		if ln.DiscountCode == "" {
			continue
		}
		if err := s.discounts.MarkProvided(ctx, ln.DiscountCode, o.CustomerID); err != nil {
			return errors.Wrapf(err, "consume discount %s", ln.DiscountCode)
		}
	}
	return nil
}

// fail applies the FAILED transition: payment FAILED, order CANCELLED.
// Stock is reversed only when the order had already been confirmed,
// meaning a prior decrease actually occurred.
func (s *Service) fail(ctx context.Context, p *Payment) error {
	o, err := s.orders.GetByID(ctx, p.OrderID)
	if err != nil {
		return err
	}

	if err := s.payments.UpdateStatus(ctx, p.ID, StatusFailed, false); err != nil {
		return errors.Wrap(err, "update payment status")
	}
	if o.Status == order.StatusConfirmed {
		if err := s.ledger.Reverse(ctx, o); err != nil {
			return err
		}
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, order.StatusCancelled); err != nil {
		return errors.Wrap(err, "update order status")
	}
	return nil
}

// settleOutOfStock converts an OutOfStockError raised inside a rolled-back
// success transition into terminal failed states, recorded in a fresh
// transaction so the stock remains untouched while the payment and order
// do not stay PENDING forever.
func (s *Service) settleOutOfStock(ctx context.Context, err error, paymentID string) error {
	var oos *inventory.OutOfStockError
	if !errors.As(err, &oos) || paymentID == "" {
		return err
	}

	settleErr := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, lockErr := s.payments.LockByID(ctx, paymentID)
		if lockErr != nil {
			return lockErr
		}
		if p.Status.Terminal() {
			return nil
		}
		if updErr := s.payments.UpdateStatus(ctx, p.ID, StatusFailed, false); updErr != nil {
			return updErr
		}
		return s.orders.UpdateStatus(ctx, p.OrderID, order.StatusCancelled)
	})
	if settleErr != nil {
		zctx.From(ctx).Error("Failed to settle out-of-stock payment",
			zap.String("payment_id", paymentID),
			zap.Error(settleErr),
		)
	}
	return err
}
