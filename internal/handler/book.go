package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/booktrade/internal/domain/book"
)

// BookResponse is the external representation of a catalog book.
type BookResponse struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Author     string          `json:"author,omitempty"`
	CoverImage string          `json:"coverImage,omitempty"`
	Format     string          `json:"format"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	SoldCount  int             `json:"soldCount"`
	SellerID   string          `json:"sellerId"`
	SellerName string          `json:"sellerName,omitempty"`
}

// ListBooks returns the full catalog.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]BookResponse, len(books))
	for i := range books {
		out[i] = mapBook(&books[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBook returns a single catalog book.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.books.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBook(b))
}

func mapBook(b *book.Book) BookResponse {
	return BookResponse{
		ID:         b.ID,
		Title:      b.Title,
		Author:     b.Author,
		CoverImage: b.CoverImage,
		Format:     string(b.Format),
		Price:      b.Price,
		Stock:      b.Stock,
		SoldCount:  b.SoldCount,
		SellerID:   b.SellerID,
		SellerName: b.SellerName,
	}
}
