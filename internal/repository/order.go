package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/booktrade/internal/domain/order"
)

const (
	orderColumns = `id, tx_ref, customer_id, total_price, status, paid, created_at`

	insertOrderSQL = `INSERT INTO orders (id, tx_ref, customer_id, total_price, status, paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, line_no, book_id, seller_id, seller_name,
			book_title, cover_image, price, quantity, discount_code, discount_amount, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByTxRefSQL = `SELECT ` + orderColumns + ` FROM orders WHERE tx_ref = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC`

	// A seller sees every order that contains at least one of their lines.
	listOrdersBySellerSQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE EXISTS (
			SELECT 1 FROM order_lines l
			WHERE l.order_id = o.id AND l.seller_id = $1
		)
		ORDER BY created_at DESC`

	linesByOrderIDsSQL = `SELECT order_id, book_id, seller_id, seller_name, book_title,
			cover_image, price, quantity, discount_code, discount_amount, total_amount
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	transitionOrderStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	getOrderStatusSQL = `SELECT status FROM orders WHERE id = $1`

	setOrderPaidSQL = `UPDATE orders SET paid = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. An
// order and its line snapshots are written atomically: inside the
// context-bound transaction when present, otherwise inside a local one.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order header and all line snapshots.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return r.create(ctx, tx, o)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin order transaction: %w", err)
	}
	if err := r.create(ctx, tx, o); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order transaction: %w", err)
	}
	return nil
}

func (r *OrderRepository) create(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	_, err := tx.Exec(ctx, insertOrderSQL,
		o.ID, o.TxRef, o.CustomerID, o.TotalPrice, o.Status, o.Paid, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	for i, ln := range o.Lines {
		_, err := tx.Exec(ctx, insertOrderLineSQL,
			o.ID, i, ln.BookID, ln.SellerID, ln.SellerName,
			ln.BookTitle, ln.CoverImage, ln.Price, ln.Quantity,
			ln.DiscountCode, ln.DiscountAmount, ln.TotalAmount,
		)
		if err != nil {
			return fmt.Errorf("inserting order line %d for order %q: %w", i, o.ID, err)
		}
	}
	return nil
}

// GetByID returns a single order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderByIDSQL, id)
}

// GetByTxRef resolves a gateway transaction reference to its order.
func (r *OrderRepository) GetByTxRef(ctx context.Context, txRef string) (*order.Order, error) {
	return r.one(ctx, getOrderByTxRefSQL, txRef)
}

func (r *OrderRepository) one(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := queryEngine(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("querying order %q: %w", arg, err)
	}

	if err := r.attachLines(ctx, []*order.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByCustomer returns all orders placed by a customer, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByCustomerSQL, customerID)
}

// ListBySeller returns all orders containing at least one line sold by
// the given seller, newest first.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersBySellerSQL, sellerID)
}

func (r *OrderRepository) list(ctx context.Context, sql, arg string) ([]order.Order, error) {
	rows, err := queryEngine(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	refs := make([]*order.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	if err := r.attachLines(ctx, refs); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines loads the line snapshots for the given orders in a single
// query and distributes them by order ID.
func (r *OrderRepository) attachLines(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := queryEngine(ctx, r.pool).Query(ctx, linesByOrderIDsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			ln      order.Line
		)
		err := rows.Scan(
			&orderID, &ln.BookID, &ln.SellerID, &ln.SellerName, &ln.BookTitle,
			&ln.CoverImage, &ln.Price, &ln.Quantity, &ln.DiscountCode,
			&ln.DiscountAmount, &ln.TotalAmount,
		)
		if err != nil {
			return fmt.Errorf("scanning order line: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, ln)
		}
	}
	return rows.Err()
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := queryEngine(ctx, r.pool).Exec(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// TransitionStatus moves the order from one status to another in a
// single conditional UPDATE. When the stored status no longer matches
// the expected one the write is skipped and order.ErrStatusConflict is
// returned; the row lock taken by the UPDATE serializes concurrent
// transitions on the same order.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := queryEngine(ctx, r.pool).Exec(ctx, transitionOrderStatusSQL, id, from, to)
	if err != nil {
		return fmt.Errorf("transitioning order %q status: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows means either the order is gone or its status moved on.
	var current order.Status
	err = queryEngine(ctx, r.pool).QueryRow(ctx, getOrderStatusSQL, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading order %q status: %w", id, err)
	}
	return order.ErrStatusConflict
}

// SetPaid flips the paid flag.
func (r *OrderRepository) SetPaid(ctx context.Context, id string, paid bool) error {
	tag, err := queryEngine(ctx, r.pool).Exec(ctx, setOrderPaidSQL, id, paid)
	if err != nil {
		return fmt.Errorf("marking order %q paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.TxRef, &o.CustomerID, &o.TotalPrice, &o.Status, &o.Paid, &o.CreatedAt)
	return o, err
}
