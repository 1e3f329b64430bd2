// Package loginguard throttles repeated authentication failures per
// subject (a login name or a client IP) using TTL'd Redis counters.
package loginguard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// ErrBlocked is returned when a login is temporarily locked out.
var ErrBlocked = errors.New("login temporarily blocked")

// Counter is the subset of redis.Client operations the guard uses.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config tunes the guard thresholds.
type Config struct {
	// MaxFailures is the number of failures within Window before the
	// login is blocked.
	MaxFailures int64
	// Window is the sliding interval failures are counted over.
	Window time.Duration
	// BlockFor is how long a login stays locked once the threshold
	// is reached.
	BlockFor time.Duration
}

// Guard records sign-in failures and blocks a login once it fails too
// often within the window. All state lives in Redis with TTLs, so a
// quiet login self-heals without any sweep.
type Guard struct {
	rdb Counter
	cfg Config
}

// New creates a Guard. Zero config fields fall back to 5 failures over
// 15 minutes with a 15 minute block.
func New(rdb Counter, cfg Config) *Guard {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.BlockFor <= 0 {
		cfg.BlockFor = 15 * time.Minute
	}
	return &Guard{rdb: rdb, cfg: cfg}
}

func failKey(login string) string {
	return fmt.Sprintf("loginguard:fail:%s", login)
}

func blockKey(login string) string {
	return fmt.Sprintf("loginguard:block:%s", login)
}

// Record registers one failed attempt and returns the running failure
// count. Reaching the threshold sets the block key.
func (g *Guard) Record(ctx context.Context, login string) (int64, error) {
	key := failKey(login)
	n, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "increment failure counter")
	}
	if n == 1 {
		// First failure in the window starts the clock.
		if err := g.rdb.Expire(ctx, key, g.cfg.Window).Err(); err != nil {
			return n, errors.Wrap(err, "set failure counter ttl")
		}
	}
	if n >= g.cfg.MaxFailures {
		if err := g.rdb.Set(ctx, blockKey(login), n, g.cfg.BlockFor).Err(); err != nil {
			return n, errors.Wrap(err, "set block key")
		}
	}
	return n, nil
}

// Blocked reports whether the login is currently locked out.
func (g *Guard) Blocked(ctx context.Context, login string) (bool, error) {
	n, err := g.rdb.Exists(ctx, blockKey(login)).Result()
	if err != nil {
		return false, errors.Wrap(err, "check block key")
	}
	return n > 0, nil
}

// Reset clears all failure state for the login, typically after a
// successful sign-in.
func (g *Guard) Reset(ctx context.Context, login string) error {
	if err := g.rdb.Del(ctx, failKey(login), blockKey(login)).Err(); err != nil {
		return errors.Wrap(err, "clear login failure state")
	}
	return nil
}
