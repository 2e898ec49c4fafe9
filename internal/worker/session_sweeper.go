package worker

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper defines the operation needed by the sweep worker.
type SessionSweeper interface {
	SweepSessions(ctx context.Context) (int64, error)
}

// SessionSweepWorker periodically deletes expired login sessions.
type SessionSweepWorker struct {
	sweeper  SessionSweeper
	interval time.Duration
}

// NewSessionSweepWorker creates a worker with the given sweeper and interval.
func NewSessionSweepWorker(sweeper SessionSweeper, interval time.Duration) *SessionSweepWorker {
	return &SessionSweepWorker{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Sweeps once on start so sessions left over from a previous run are
// cleared without waiting a full interval.
func (w *SessionSweepWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "session-sweep",
		"interval", w.interval.String(),
	)

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "session-sweep",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep executes a single sweep cycle.
func (w *SessionSweepWorker) sweep(ctx context.Context) {
	start := time.Now()

	deleted, err := w.sweeper.SweepSessions(ctx)
	if err != nil {
		// Check for graceful shutdown
		if ctx.Err() != nil {
			return
		}
		slog.Error("session sweep failed",
			"component", "worker",
			"action", "sweep_failed",
			"error", err,
		)
		return
	}

	level := slog.LevelDebug
	if deleted > 0 {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "session sweep completed",
		"component", "worker",
		"action", "sweep_complete",
		"deleted", deleted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
