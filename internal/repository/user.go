package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/booktrade/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, username, email, role, store_name, created_at
		FROM users WHERE id = $1`

	// A single query path resolves either a username or an email address.
	findUserByLoginSQL = `SELECT id, username, email, role, store_name, created_at
		FROM users WHERE username = $1 OR email = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a single user by its identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.one(ctx, getUserByIDSQL, id)
}

// FindByLogin resolves a username or email address to a user.
func (r *UserRepository) FindByLogin(ctx context.Context, usernameOrEmail string) (*user.User, error) {
	return r.one(ctx, findUserByLoginSQL, usernameOrEmail)
}

func (r *UserRepository) one(ctx context.Context, sql, arg string) (*user.User, error) {
	rows, err := queryEngine(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying user %q: %w", arg, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("querying user %q: %w", arg, err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u         user.User
		storeName *string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &storeName, &u.CreatedAt)
	if err != nil {
		return u, err
	}
	if storeName != nil {
		u.Seller = &user.SellerDetail{StoreName: *storeName}
	}
	return u, nil
}
