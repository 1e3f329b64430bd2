package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsWithinBudget(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for range 5 {
		w := limitedRequest(h, "10.0.0.1:1234")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_RejectsWhenExhausted(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Hour})(okHandler())

	require.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1:1234").Code)
	require.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1:1234").Code)

	w := limitedRequest(h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Hour})(okHandler())

	require.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1:1234").Code)
	require.Equal(t, http.StatusTooManyRequests, limitedRequest(h, "10.0.0.1:1234").Code)

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.2:1234").Code)
}

func TestRateLimit_RefillsOverTime(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Second})
	now := time.Now()

	_, _, ok := l.take("c", now)
	require.True(t, ok)
	_, _, ok = l.take("c", now)
	require.True(t, ok)
	_, _, ok = l.take("c", now)
	require.False(t, ok)

	// Half a window refills one token.
	_, _, ok = l.take("c", now.Add(500*time.Millisecond))
	assert.True(t, ok)
	_, _, ok = l.take("c", now.Add(500*time.Millisecond))
	assert.False(t, ok)
}

func TestRateLimit_BurstCappedAtMax(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 3, Window: time.Second})
	now := time.Now()

	// A long idle period must not accumulate more than Max tokens.
	_, _, ok := l.take("c", now)
	require.True(t, ok)

	later := now.Add(time.Hour)
	var allowed int
	for range 10 {
		if _, _, ok := l.take("c", later); ok {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestRateLimit_EvictIdle(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Second})
	now := time.Now()

	_, _, ok := l.take("c", now)
	require.True(t, ok)
	require.Len(t, l.buckets, 1)

	l.evictIdle(now.Add(3 * time.Second))
	assert.Empty(t, l.buckets)
}

func TestRateLimit_ForwardedForKey(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Hour})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Same forwarded client from a different socket shares the bucket.
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "10.0.0.2:9999"
	req2.Header.Set("X-Forwarded-For", "203.0.113.7")
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}

func TestRateLimitWithCleanup_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := RateLimitWithCleanup(ctx, RateLimitConfig{Max: 10, Window: 10 * time.Millisecond})(okHandler())
	cancel()

	w := limitedRequest(h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
}
