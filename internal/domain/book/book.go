package book

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Format enumerates the physical formats a book can be sold in.
type Format string

const (
	FormatPaperback Format = "paperback"
	FormatHardcover Format = "hardcover"
	FormatEbook     Format = "ebook"
)

// ErrNotFound is returned when a requested book does not exist.
var ErrNotFound = errors.New("book not found")

// ErrInsufficientStock is returned by DecrementStock when the book's stock
// is lower than the requested quantity. The conditional decrement either
// applies fully or not at all.
var ErrInsufficientStock = errors.New("insufficient stock")

// Book represents a catalog item listed by a seller. Price and stock are
// the live catalog values; orders snapshot them at creation time.
type Book struct {
	ID         string
	Title      string
	Author     string
	CoverImage string
	Format     Format
	Price      decimal.Decimal
	Stock      int
	SoldCount  int
	SellerID   string
	SellerName string
}

// Repository defines catalog operations used by the order pipeline.
//
// DecrementStock must be atomic and conditional: it subtracts qty from
// stock (and adds it to sold_count) only when stock >= qty, returning
// ErrInsufficientStock otherwise. IncrementStock is the unconditional
// inverse. Both are expected to participate in the caller's transaction
// when one is bound to the context.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Book, error)
	List(ctx context.Context) ([]Book, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
}
