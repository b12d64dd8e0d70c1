package famguard

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepTimeout = 2 * time.Minute

// startMaintenance schedules the sweep of spent refresh tokens and reset
// links. Jobs never overlap; a sweep still running when the next tick fires
// skips that tick.
func (e *Engine) startMaintenance(schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, e.sweepJob); err != nil {
		return fmt.Errorf("schedule refresh sweep: %w", err)
	}
	c.Start()
	e.scheduler = c
	e.logger.Info("maintenance scheduler started", "sweep_schedule", schedule)
	return nil
}

func (e *Engine) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := e.SweepRefreshTokens(ctx); err != nil {
		e.logger.Warn("refresh sweep failed", "error", err)
	}
	if _, err := e.SweepPasswordResets(ctx); err != nil {
		e.logger.Warn("reset link sweep failed", "error", err)
	}
}

// SweepRefreshTokens deletes expired and revoked refresh rows and returns
// how many went. Running it repeatedly is harmless.
func (e *Engine) SweepRefreshTokens(ctx context.Context) (int64, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.refresh.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.metrics.Add(MetricRefreshSwept, uint64(n))
	}
	e.logger.Info("refresh tokens swept", "deleted", n)
	return n, nil
}

// SweepPasswordResets deletes used and expired reset links.
func (e *Engine) SweepPasswordResets(ctx context.Context) (int64, error) {
	if e == nil || e.resets == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.resets.DeleteInactive(ctx, e.now())
	if err != nil {
		return 0, err
	}
	e.logger.Info("reset links swept", "deleted", n)
	return n, nil
}
