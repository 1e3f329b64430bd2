// Command seed-db loads development fixtures: users, catalog books,
// discount codes, and the default API key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/booktrade/internal/domain/auth"
	"github.com/xenking/booktrade/internal/repository"
)

type bookJSON struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Author     string          `json:"author"`
	CoverImage string          `json:"coverImage"`
	Format     string          `json:"format"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	SellerID   string          `json:"sellerId"`
}

const (
	upsertUserSQL = `INSERT INTO users (id, username, email, role, store_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			store_name = EXCLUDED.store_name`

	upsertBookSQL = `INSERT INTO books (id, title, author, cover_image, format, price, stock, seller_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			cover_image = EXCLUDED.cover_image,
			format = EXCLUDED.format,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			seller_id = EXCLUDED.seller_id`

	upsertDiscountSQL = `INSERT INTO discount_codes (id, code, percentage, amount, min_order_value, active, provider, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			percentage = EXCLUDED.percentage,
			amount = EXCLUDED.amount,
			min_order_value = EXCLUDED.min_order_value,
			active = EXCLUDED.active`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = EXCLUDED.active`
)

func main() {
	var (
		databaseURL  string
		booksFile    string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&booksFile, "books-file", "db/seed/books.json", "path to books JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or BTP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BTP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("BTP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or BTP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BTP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, booksFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, booksFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedUsers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedBooks(ctx, pool, booksFile); err != nil {
		return errors.Wrap(err, "seed books")
	}
	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discount codes")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding development users")

	users := []struct {
		id, username, email, role string
		storeName                 *string
	}{
		{id: "customer-1", username: "alice", email: "alice@example.com", role: "customer"},
		{id: "seller-1", username: "pagesandco", email: "shop@pagesandco.example.com", role: "seller", storeName: ptr("Pages & Co")},
		{id: "admin-1", username: "admin", email: "admin@example.com", role: "admin"},
	}

	for _, u := range users {
		if _, err := pool.Exec(ctx, upsertUserSQL, u.id, u.username, u.email, u.role, u.storeName); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.id)
		}
		slog.Info("upserted user", slog.String("id", u.id), slog.String("role", u.role))
	}
	return nil
}

func seedBooks(ctx context.Context, pool *pgxpool.Pool, booksFile string) error {
	slog.Info("reading books file", slog.String("path", booksFile))

	data, err := os.ReadFile(booksFile)
	if err != nil {
		return errors.Wrap(err, "read books file")
	}

	var books []bookJSON
	if err := json.Unmarshal(data, &books); err != nil {
		return errors.Wrap(err, "parse books JSON")
	}

	slog.Info("upserting books", slog.Int("count", len(books)))

	for _, b := range books {
		if _, err := pool.Exec(ctx, upsertBookSQL,
			b.ID, b.Title, b.Author, b.CoverImage, b.Format, b.Price, b.Stock, b.SellerID,
		); err != nil {
			return errors.Wrapf(err, "upsert book %s", b.ID)
		}
		slog.Info("upserted book", slog.String("id", b.ID), slog.String("title", b.Title))
	}
	return nil
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding discount codes")

	now := time.Now()
	codes := []struct {
		code          string
		percentage    bool
		amount        decimal.Decimal
		minOrderValue decimal.Decimal
	}{
		{code: "WELCOME10", percentage: true, amount: decimal.NewFromInt(10), minOrderValue: decimal.NewFromInt(100000)},
		{code: "FLAT20K", percentage: false, amount: decimal.NewFromInt(20000), minOrderValue: decimal.NewFromInt(150000)},
	}

	for _, c := range codes {
		if _, err := pool.Exec(ctx, upsertDiscountSQL,
			uuid.New().String(), c.code, c.percentage, c.amount, c.minOrderValue,
			true, "seed", nil, now,
		); err != nil {
			return errors.Wrapf(err, "upsert discount %s", c.code)
		}
		slog.Info("upserted discount code", slog.String("code", c.code))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	keyHash := auth.HashKey([]byte(pepper), apiKey)
	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default test key", []string{"orders", "payments"}, true,
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}

func ptr[T any](v T) *T { return &v }
