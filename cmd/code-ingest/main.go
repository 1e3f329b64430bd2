// Command code-ingest bulk-loads promotional discount codes from
// partner-supplied gzip code lists. A code is accepted only when it
// appears in at least two of the partner files; single-file codes are
// treated as typos or leaks.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/booktrade/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
	upsertBatch   = 500
)

// codeRule describes the discount to attach to a known promo code.
type codeRule struct {
	percentage    bool
	amount        string
	minOrderValue string
	provider      string
}

var codeRules = map[string]codeRule{
	"BIRTHDAY": {percentage: true, amount: "25", minOrderValue: "0", provider: "marketing"},
	"FIFTYOFF": {percentage: true, amount: "50", minOrderValue: "200000", provider: "marketing"},
	"READMORE": {percentage: true, amount: "15", minOrderValue: "0", provider: "marketing"},
	"FLAT50KV": {percentage: false, amount: "50000", minOrderValue: "300000", provider: "marketing"},
	"BOOKWORM": {percentage: true, amount: "18", minOrderValue: "100000", provider: "marketing"},
}

var defaultRule = codeRule{
	percentage:    true,
	amount:        "10",
	minOrderValue: "0",
	provider:      "partner",
}

const upsertCodeSQL = `INSERT INTO discount_codes
		(id, code, percentage, amount, min_order_value, active, provider, expires_at, created_at)
	VALUES ($1, $2, $3, $4, $5, TRUE, $6, NULL, $7)
	ON CONFLICT (code) DO UPDATE SET
		percentage = EXCLUDED.percentage,
		amount = EXCLUDED.amount,
		min_order_value = EXCLUDED.min_order_value,
		active = TRUE,
		provider = EXCLUDED.provider`

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing codebaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("code ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("code ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	sources, err := openSources(dataDir)
	if err != nil {
		return err
	}

	// Pass 1: every file gets its own bloom filter.
	slog.Info("pass 1: indexing code files", slog.Int("files", len(sources)))

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error { return src.index(gctx) })
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "index code files")
	}

	// Pass 2: re-stream each file against the other files' filters and
	// tally in how many files each candidate actually occurs.
	slog.Info("pass 2: cross-checking candidates")

	shared := make([]map[string]struct{}, len(sources))
	g, gctx = errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			m, err := src.sharedCandidates(gctx, sources)
			shared[i] = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "cross-check candidates")
	}

	valid := codesInTwoOrMore(shared)
	slog.Info("valid codes found", slog.Int("count", len(valid)))
	if len(valid) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := storeCodes(ctx, pool, valid); err != nil {
		return errors.Wrap(err, "write discount codes to database")
	}
	return nil
}

// sourceFile is one partner code list and the bloom filter built over it.
type sourceFile struct {
	n      int
	path   string
	filter *bloom.BloomFilter
}

func openSources(dataDir string) ([]*sourceFile, error) {
	sources := make([]*sourceFile, 0, numFiles)
	for i := 1; i <= numFiles; i++ {
		path := filepath.Join(dataDir, fmt.Sprintf("codebase%d.gz", i))
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "check file %s", path)
		}
		sources = append(sources, &sourceFile{n: i, path: path})
	}
	return sources, nil
}

// index streams the file once and records every well-formed code in a
// fresh bloom filter.
func (s *sourceFile) index(ctx context.Context) error {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	seen, err := s.scan(ctx, "pass 1", func(code string) {
		filter.AddString(code)
	})
	if err != nil {
		return errors.Wrapf(err, "index file %d", s.n)
	}

	slog.Info("pass 1 complete", slog.Int("file", s.n), slog.Uint64("total_codes", seen))
	s.filter = filter
	return nil
}

// sharedCandidates streams the file again and keeps the codes that also
// test positive in at least one other file's filter. The returned set is
// keyed by code; membership alone already proves presence in this file.
func (s *sourceFile) sharedCandidates(ctx context.Context, all []*sourceFile) (map[string]struct{}, error) {
	candidates := make(map[string]struct{})
	seen, err := s.scan(ctx, "pass 2", func(code string) {
		for _, other := range all {
			if other.n == s.n {
				continue
			}
			if other.filter.TestString(code) {
				candidates[code] = struct{}{}
				break
			}
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cross-check file %d", s.n)
	}

	slog.Info("pass 2 complete",
		slog.Int("file", s.n),
		slog.Uint64("total_codes", seen),
		slog.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// scan decompresses the file line by line, skips codes outside the valid
// length range, and reports progress under the given label. It returns
// the number of codes visited.
func (s *sourceFile) scan(ctx context.Context, label string, visit func(code string)) (uint64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", s.path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", s.path)
	}
	defer func() { _ = gz.Close() }()

	var seen uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return seen, err
		}
		code := scanner.Text()
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}

		seen++
		if seen%progressEvery == 0 {
			slog.Info(label+" progress", slog.Int("file", s.n), slog.Uint64("codes", seen))
		}
		visit(code)
	}
	if err := scanner.Err(); err != nil {
		return seen, errors.Wrapf(err, "scan %s", s.path)
	}
	return seen, nil
}

// codesInTwoOrMore tallies per-file candidate sets and keeps the codes
// occurring in at least two distinct files. Bloom false positives die
// here: a code present in only one file contributes a single tally no
// matter how many foreign filters it happened to match.
func codesInTwoOrMore(shared []map[string]struct{}) []string {
	tally := make(map[string]int)
	for _, set := range shared {
		for code := range set {
			tally[code]++
		}
	}

	var valid []string
	for code, files := range tally {
		if files >= 2 {
			valid = append(valid, code)
		}
	}
	return valid
}

// storeCodes upserts the valid discount codes in batches.
func storeCodes(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	slog.Info("writing discount codes to database", slog.Int("count", len(codes)))

	now := time.Now()
	for start := 0; start < len(codes); start += upsertBatch {
		end := min(start+upsertBatch, len(codes))

		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			rule, ok := codeRules[code]
			if !ok {
				rule = defaultRule
			}

			amount, err := decimal.NewFromString(rule.amount)
			if err != nil {
				return errors.Wrapf(err, "parse amount for code %s", code)
			}
			minOrderValue, err := decimal.NewFromString(rule.minOrderValue)
			if err != nil {
				return errors.Wrapf(err, "parse min order value for code %s", code)
			}

			batch.Queue(upsertCodeSQL,
				uuid.New().String(), code, rule.percentage, amount, minOrderValue, rule.provider, now,
			)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert codes %d..%d", start+1, end)
		}
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}
	return nil
}
