package repository

import (
	"context"
	"time"

	"github.com/okian/fanpulse/pkg/logger"
)

const defaultSweepInterval = 30 * time.Second

// Sweeper periodically removes expired cache entries. It implements
// suture.Service so a supervisor can restart it.
type Sweeper struct {
	kv       KV
	interval time.Duration
	logger   logger.Logger
}

// NewSweeper returns a sweeper for kv. A non-positive interval uses the default.
func NewSweeper(kv KV, interval time.Duration, l logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if l == nil {
		l = logger.Get().Named("cache-sweeper")
	}
	return &Sweeper{kv: kv, interval: interval, logger: l}
}

// Serve runs sweeps until ctx is cancelled.
func (w *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.kv.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error(ctx, "cache sweep failed", logger.Error(err))
				return err
			}
			if n > 0 {
				w.logger.Debug(ctx, "cache sweep removed expired entries", logger.Int("removed", n))
			}
		}
	}
}

// String names the service in supervisor events.
func (w *Sweeper) String() string { return "cache-sweeper" }
