package discount

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Sweeper periodically soft-deactivates expired discount codes. It is the
// only background writer to discount_codes; order processing never flips
// the active flag.
type Sweeper struct {
	repo     Repository
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a Sweeper that runs DeactivateExpired every interval.
func NewSweeper(repo Repository, interval time.Duration) *Sweeper {
	return &Sweeper{repo: repo, interval: interval, now: time.Now}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then on
// every tick. Sweep errors are logged and the loop continues.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	lg := zctx.From(ctx)
	n, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		lg.Error("Discount sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		lg.Info("Deactivated expired discount codes", zap.Int64("count", n))
	}
}
