package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper deactivates subscriptions whose end date has passed.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// StartExpirySweeper runs one sweep right away and then one per interval
// until ctx is cancelled. The returned channel closes when the loop exits.
func StartExpirySweeper(ctx context.Context, s Sweeper, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sweep(ctx, s, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(ctx, s, logger)
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, s Sweeper, logger *zap.Logger) {
	n, err := s.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("expiry sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		logger.Debug("expiry sweep", zap.Int64("deactivated", n))
	}
}
