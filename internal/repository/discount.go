package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/booktrade/internal/domain/discount"
)

const (
	discountColumns = `id, code, percentage, amount, min_order_value, active, provider, expires_at, created_at`

	findDiscountByCodeSQL = `SELECT ` + discountColumns + ` FROM discount_codes WHERE code = $1`

	insertDiscountSQL = `INSERT INTO discount_codes
			(id, code, percentage, amount, min_order_value, active, provider, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	// Consumption is recorded at most once per (code, user); the same
	// customer confirming duplicate callbacks stays a single row.
	markProvidedSQL = `INSERT INTO discount_provided_users (discount_id, user_id)
		SELECT id, $2 FROM discount_codes WHERE code = $1
		ON CONFLICT DO NOTHING`

	deactivateExpiredSQL = `UPDATE discount_codes
		SET active = FALSE
		WHERE active AND expires_at IS NOT NULL AND expires_at < $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode returns the code regardless of its active or expiry state;
// applicability is the caller's decision.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := queryEngine(ctx, r.pool).Query(ctx, findDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("querying discount code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("querying discount code %q: %w", code, err)
	}
	return &c, nil
}

// Create persists a new discount code.
func (r *DiscountRepository) Create(ctx context.Context, c *discount.Code) error {
	_, err := queryEngine(ctx, r.pool).Exec(ctx, insertDiscountSQL,
		c.ID, c.Code, c.Percentage, c.Amount, c.MinOrderValue,
		c.Active, c.Provider, c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting discount code %q: %w", c.Code, err)
	}
	return nil
}

// MarkProvided records that the user consumed the code. Idempotent.
func (r *DiscountRepository) MarkProvided(ctx context.Context, code, userID string) error {
	_, err := queryEngine(ctx, r.pool).Exec(ctx, markProvidedSQL, code, userID)
	if err != nil {
		return fmt.Errorf("marking discount %q provided to %q: %w", code, userID, err)
	}
	return nil
}

// DeactivateExpired soft-disables all active codes past their expiry,
// returning how many were flipped.
func (r *DiscountRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := queryEngine(ctx, r.pool).Exec(ctx, deactivateExpiredSQL, now)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired discount codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Code, error) {
	var c discount.Code
	err := row.Scan(
		&c.ID, &c.Code, &c.Percentage, &c.Amount, &c.MinOrderValue,
		&c.Active, &c.Provider, &c.ExpiresAt, &c.CreatedAt,
	)
	return c, err
}
