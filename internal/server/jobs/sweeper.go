// Package jobs holds background work the server runs next to the HTTP API.
package jobs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/clock"
	"github.com/dmitrijs2005/zkshare/internal/logging"
)

// DefaultInterval is used when the configured sweep interval is not positive.
const DefaultInterval = 10 * time.Minute

// Cleaner removes stale files and reports how many went.
type Cleaner interface {
	Cleanup(ctx context.Context, now time.Time) (int, error)
}

// Sweeper calls Cleanup on every tick until its context is canceled.
type Sweeper struct {
	cleaner  Cleaner
	clk      clock.Clock
	interval time.Duration
	logger   logging.Logger
}

func NewSweeper(c Cleaner, clk clock.Clock, interval time.Duration, l logging.Logger) *Sweeper {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if l == nil {
		l = logging.Nop()
	}
	return &Sweeper{
		cleaner:  c,
		clk:      clk,
		interval: interval,
		logger:   l.With("module", "sweeper"),
	}
}

// Run blocks until ctx is done. Errors from a sweep are logged and the next
// tick tries again.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clk.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Starting sweeper", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping sweeper...")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single cleanup pass.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.cleaner.Cleanup(ctx, s.clk.Now().UTC())
	if err != nil {
		s.logger.Error(ctx, "cleanup failed", "removed", n, "error", err)
		return n
	}
	if n > 0 {
		s.logger.Info(ctx, "stale files removed", "removed", n)
	}
	return n
}
