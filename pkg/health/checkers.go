package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags a goroutine leak: the check fails once the
// process holds more than limit goroutines.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines exceed limit %d", n, limit)
		}
		return nil
	}
}

// HeapAllocCheck fails once the live heap exceeds limit bytes. Useful as a
// liveness check on memory-constrained deployments.
func HeapAllocCheck(limit uint64) CheckFunc {
	return func(_ context.Context) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > limit {
			return errors.Errorf("heap alloc %d bytes exceeds limit %d", ms.HeapAlloc, limit)
		}
		return nil
	}
}
