// Package admin exposes the operator-facing operations on the defense
// engine: live reconfiguration, full state reset, and inspection.
package admin

import (
	"context"
	"fmt"
	"log/slog"

	"dochost/internal/audit"
	"dochost/internal/defense/config"
	"dochost/internal/defense/metrics"
	"dochost/internal/defense/models"
)

type Engine interface {
	ResetAll(ctx context.Context)
	Inspect(ctx context.Context) models.Snapshot
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditRecorder(recorder *audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

type Service struct {
	settings *config.Store
	engine   Engine
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder *audit.Recorder
}

func New(settings *config.Store, engine Engine, opts ...Option) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	svc := &Service{
		settings: settings,
		engine:   engine,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Configure atomically merges recognized keys from the patch into the live
// configuration. Unrecognized keys are ignored; invalid values are rejected
// per key without disturbing the rest of the patch.
func (s *Service) Configure(ctx context.Context, patch map[string]any) config.ApplyResult {
	res := s.settings.Apply(patch)

	if s.metrics != nil {
		s.metrics.AddConfigUpdates("applied", len(res.Applied))
		s.metrics.AddConfigUpdates("rejected", len(res.Rejected))
	}
	s.audit(ctx, "admin_config_updated",
		"applied", res.Applied,
		"rejected", res.Rejected,
	)
	return res
}

// ResetState clears every counter and denial so configuration changes can
// retroactively lift existing locks and blocks.
func (s *Service) ResetState(ctx context.Context) {
	s.engine.ResetAll(ctx)
	s.audit(ctx, "admin_state_reset")
}

// Inspect returns the current configuration and live denial state without
// mutating anything.
func (s *Service) Inspect(ctx context.Context) models.Snapshot {
	return s.engine.Inspect(ctx)
}

func (s *Service) audit(ctx context.Context, event string, attrs ...any) {
	if s.logger != nil {
		args := append(attrs, "event", event, "log_type", "audit")
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.recorder != nil {
		details := make(map[string]any, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			if key, ok := attrs[i].(string); ok {
				details[key] = attrs[i+1]
			}
		}
		_ = s.recorder.Record(ctx, audit.Event{Event: event, Details: details})
	}
}
