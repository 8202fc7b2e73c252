package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ExpiredTokenPurger deletes ephemeral tokens that can no longer be redeemed.
type ExpiredTokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically garbage-collects expired ephemeral tokens. Validity
// never depends on it running.
type Janitor struct {
	purger   ExpiredTokenPurger
	clock    clockwork.Clock
	interval time.Duration
	logger   *zap.Logger
}

// NewJanitor creates a janitor; clock may be nil.
func NewJanitor(purger ExpiredTokenPurger, interval time.Duration, clock clockwork.Clock, logger *zap.Logger) *Janitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{purger: purger, clock: clock, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Warn("expired token purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Debug("purged expired tokens", zap.Int64("count", n))
	}
}
