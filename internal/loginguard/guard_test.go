package loginguard

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounter is an in-memory stand-in for the Redis operations the
// guard uses. TTLs are recorded but never expire within a test.
type fakeCounter struct {
	values map[string]int64
	ttls   map[string]time.Duration
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{
		values: make(map[string]int64),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.values[key]++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(f.values[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.ttls[key] = ttl
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeCounter) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (f *fakeCounter) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.values[key] = 1
	f.ttls[key] = ttl
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeCounter) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			delete(f.ttls, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func TestGuardBlocksAfterThreshold(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCounter()
	guard := New(fake, Config{MaxFailures: 3, Window: time.Minute, BlockFor: time.Minute})

	for i := 1; i <= 2; i++ {
		n, err := guard.Record(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)

		blocked, err := guard.Blocked(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, blocked)
	}

	n, err := guard.Record(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	blocked, err := guard.Blocked(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestGuardIsolatesLogins(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCounter()
	guard := New(fake, Config{MaxFailures: 1, Window: time.Minute, BlockFor: time.Minute})

	_, err := guard.Record(ctx, "alice")
	require.NoError(t, err)

	blocked, err := guard.Blocked(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestGuardResetClearsState(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCounter()
	guard := New(fake, Config{MaxFailures: 1, Window: time.Minute, BlockFor: time.Minute})

	_, err := guard.Record(ctx, "alice")
	require.NoError(t, err)

	blocked, err := guard.Blocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, blocked)

	require.NoError(t, guard.Reset(ctx, "alice"))

	blocked, err = guard.Blocked(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, blocked)

	n, err := guard.Record(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after reset")
}

func TestGuardDefaults(t *testing.T) {
	guard := New(newFakeCounter(), Config{})
	assert.Equal(t, int64(5), guard.cfg.MaxFailures)
	assert.Equal(t, 15*time.Minute, guard.cfg.Window)
	assert.Equal(t, 15*time.Minute, guard.cfg.BlockFor)
}
