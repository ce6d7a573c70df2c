package core

// scheduler.go runs the recurring materializer in the background.
//
// The loop runs a pass on start (unless disabled), then once per interval,
// and stops when its context is cancelled. A failed pass is logged and the
// next tick proceeds normally.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultRecurringInterval is the wake-up period when none is configured.
const DefaultRecurringInterval = time.Hour

// SchedulerConfig controls StartRecurringScheduler.
type SchedulerConfig struct {
	Interval    time.Duration // default: 1h
	RunOnStart  bool
	PassTimeout time.Duration // 0 means no per-pass deadline
}

// StartRecurringScheduler blocks running materializer passes until ctx is
// cancelled. Call it in its own goroutine.
func (m *Materializer) StartRecurringScheduler(ctx context.Context, cfg SchedulerConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRecurringInterval
	}
	m.logger.Info("recurring scheduler started",
		"interval", cfg.Interval.String(),
		"run_on_start", cfg.RunOnStart,
	)

	if cfg.RunOnStart {
		m.runScheduledPass(ctx, cfg)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("recurring scheduler stopped")
			return
		case <-ticker.C:
			m.runScheduledPass(ctx, cfg)
		}
	}
}

func (m *Materializer) runScheduledPass(ctx context.Context, cfg SchedulerConfig) {
	if cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.PassTimeout)
		defer cancel()
	}

	start := time.Now()
	summary, err := m.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrMaterializerBusy):
		m.logger.Warn("recurring pass skipped, previous pass still running")
		return
	case err != nil:
		m.logger.Error("recurring pass failed", "error", err)
		return
	}

	level := slog.LevelDebug
	if summary.Created > 0 || summary.Failed > 0 {
		level = slog.LevelInfo
	}
	m.logger.Log(ctx, level, "recurring pass completed",
		"templates", summary.Templates,
		"created", summary.Created,
		"failed", summary.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
