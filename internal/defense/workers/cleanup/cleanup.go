// Package cleanup runs the periodic maintenance sweep that keeps the defense
// engine's per-key maps bounded over long uptimes.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"dochost/internal/defense/metrics"
	"dochost/internal/defense/models"
)

type Sweeper interface {
	Sweep(ctx context.Context) models.SweepResult
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

type Worker struct {
	engine   Sweeper
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
}

func New(engine Sweeper, opts ...Option) *Worker {
	w := &Worker{
		engine:   engine,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs sweeps until the context is cancelled. Cancellation is the
// normal way to stop the worker, so it returns nil rather than the context
// error.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			startTime := time.Now()
			res := w.engine.Sweep(ctx)
			duration := time.Since(startTime)

			w.logger.Info("defense_sweep_completed",
				"windows_dropped", res.WindowsDropped,
				"deadlines_dropped", res.DeadlinesDropped,
				"duration_ms", duration.Milliseconds(),
			)

			if w.metrics != nil {
				w.metrics.IncrementSweepRuns("success")
				w.metrics.ObserveSweepDuration(duration.Seconds())
				w.metrics.AddEntriesSwept(res.WindowsDropped + res.DeadlinesDropped)
			}

		case <-ctx.Done():
			w.logger.Info("defense sweep worker stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunOnce executes a single sweep. Logging is handled by the caller (Start).
func (w *Worker) RunOnce(ctx context.Context) models.SweepResult {
	return w.engine.Sweep(ctx)
}
