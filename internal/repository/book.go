package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/booktrade/internal/domain/book"
)

const (
	bookColumns = `b.id, b.title, b.author, b.cover_image, b.format, b.price, b.stock, b.sold_count, b.seller_id, COALESCE(u.store_name, '')`

	getBookByIDSQL = `SELECT ` + bookColumns + `
		FROM books b JOIN users u ON u.id = b.seller_id
		WHERE b.id = $1`

	listBooksSQL = `SELECT ` + bookColumns + `
		FROM books b JOIN users u ON u.id = b.seller_id
		ORDER BY b.id`

	// Conditional decrement: zero rows affected stands in for the
	// out-of-stock failure and serializes concurrent checkouts on the
	// same book without an explicit row lock.
	decrementStockSQL = `UPDATE books
		SET stock = stock - $2, sold_count = sold_count + $2
		WHERE id = $1 AND stock >= $2`

	incrementStockSQL = `UPDATE books
		SET stock = stock + $2, sold_count = sold_count - $2
		WHERE id = $1`
)

var _ book.Repository = (*BookRepository)(nil)

// BookRepository implements book.Repository backed by PostgreSQL.
type BookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository returns a BookRepository that uses the given pool.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

// GetByID returns a single book with its seller's store name joined in.
func (r *BookRepository) GetByID(ctx context.Context, id string) (*book.Book, error) {
	rows, err := queryEngine(ctx, r.pool).Query(ctx, getBookByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting book %q: %w", id, err)
	}

	b, err := pgx.CollectExactlyOneRow(rows, scanBook)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, book.ErrNotFound
		}
		return nil, fmt.Errorf("getting book %q: %w", id, err)
	}
	return &b, nil
}

// List returns all catalog books ordered by ID.
func (r *BookRepository) List(ctx context.Context) ([]book.Book, error) {
	rows, err := queryEngine(ctx, r.pool).Query(ctx, listBooksSQL)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return pgx.CollectRows(rows, scanBook)
}

// DecrementStock atomically subtracts qty from stock and adds it to
// sold_count, but only when the remaining stock covers the quantity.
// Returns book.ErrInsufficientStock when the guard fails and
// book.ErrNotFound when no such book exists.
func (r *BookRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	tag, err := queryEngine(ctx, r.pool).Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for book %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, book.ErrNotFound) {
			return book.ErrNotFound
		}
		return book.ErrInsufficientStock
	}
	return nil
}

// IncrementStock unconditionally adds qty back to stock and subtracts it
// from sold_count.
func (r *BookRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	tag, err := queryEngine(ctx, r.pool).Exec(ctx, incrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock for book %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return book.ErrNotFound
	}
	return nil
}

func scanBook(row pgx.CollectableRow) (book.Book, error) {
	var b book.Book
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.CoverImage, &b.Format,
		&b.Price, &b.Stock, &b.SoldCount, &b.SellerID, &b.SellerName,
	)
	return b, err
}
