package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/booktrade/internal/domain/payment"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation.
const uniqueViolation = "23505"

const (
	paymentColumns = `id, order_id, amount, method, status, accepted, created_at`

	insertPaymentSQL = `INSERT INTO payments (id, order_id, amount, method, status, accepted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getPaymentByIDSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	getPaymentByOrderIDSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	// FOR UPDATE serializes concurrent settlement attempts on the same
	// payment row for the duration of the transaction.
	lockPaymentByIDSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE id = $1 FOR UPDATE`

	lockPaymentByOrderIDSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1 FOR UPDATE`

	updatePaymentStatusSQL = `UPDATE payments SET status = $2, accepted = $3 WHERE id = $1`

	existsNonTerminalSQL = `SELECT EXISTS (
		SELECT 1 FROM payments WHERE order_id = $1 AND status = 'PENDING'
	)`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a new payment row. The payments_one_pending_per_order
// partial unique index is the authoritative guard against two PENDING
// payments on one order; hitting it surfaces as payment.ErrPaymentExists
// so concurrent creates lose cleanly instead of failing with a raw
// constraint error.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := queryEngine(ctx, r.pool).Exec(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.Amount, p.Method, p.Status, p.Accepted, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.ErrPaymentExists
		}
		return fmt.Errorf("inserting payment %q: %w", p.ID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// GetByID returns a single payment by its identifier.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.one(ctx, getPaymentByIDSQL, id)
}

// GetByOrderID returns the latest payment for an order.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.one(ctx, getPaymentByOrderIDSQL, orderID)
}

// LockByID returns the payment with its row locked FOR UPDATE. Must run
// inside a context-bound transaction.
func (r *PaymentRepository) LockByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.one(ctx, lockPaymentByIDSQL, id)
}

// LockByOrderID returns the latest payment for an order with its row
// locked FOR UPDATE. Must run inside a context-bound transaction.
func (r *PaymentRepository) LockByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.one(ctx, lockPaymentByOrderIDSQL, orderID)
}

func (r *PaymentRepository) one(ctx context.Context, sql, arg string) (*payment.Payment, error) {
	rows, err := queryEngine(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying payment %q: %w", arg, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("querying payment %q: %w", arg, err)
	}
	return &p, nil
}

// UpdateStatus sets the payment status and accepted flag.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status payment.Status, accepted bool) error {
	tag, err := queryEngine(ctx, r.pool).Exec(ctx, updatePaymentStatusSQL, id, status, accepted)
	if err != nil {
		return fmt.Errorf("updating payment %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// ExistsNonTerminal reports whether the order has a PENDING payment.
func (r *PaymentRepository) ExistsNonTerminal(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := queryEngine(ctx, r.pool).QueryRow(ctx, existsNonTerminalSQL, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pending payment for order %q: %w", orderID, err)
	}
	return exists, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.Accepted, &p.CreatedAt)
	return p, err
}
