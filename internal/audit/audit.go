// Package audit writes one JSON object per line to an append-only log and
// mirrors each event to the structured logger. Events are enriched with the
// request's client address, parsed user agent, and request id when present
// on the context.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"dochost/internal/platform/middleware"
	"dochost/pkg/requestcontext"
)

type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Browser   string         `json:"browser,omitempty"`
	OS        string         `json:"os,omitempty"`
	Username  string         `json:"username,omitempty"`
	Success   *bool          `json:"success,omitempty"`
	Decision  string         `json:"decision,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder serializes writes so concurrent requests cannot interleave lines.
type Recorder struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

func NewRecorder(out io.Writer, opts ...Option) (*Recorder, error) {
	if out == nil {
		return nil, fmt.Errorf("output writer is required")
	}

	rec := &Recorder{out: out}
	for _, opt := range opts {
		opt(rec)
	}
	return rec, nil
}

// Open creates the log file's directory if needed and opens the file for
// appending.
func Open(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return f, nil
}

func (r *Recorder) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx).UTC()
	}
	if event.RequestID == "" {
		event.RequestID = middleware.GetRequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}
	if event.UserAgent != "" && event.Browser == "" {
		ua := useragent.New(event.UserAgent)
		event.Browser, _ = ua.Browser()
		event.OS = ua.OS()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	r.mu.Lock()
	_, err = r.out.Write(append(line, '\n'))
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, event.Event,
			"event", event.Event,
			"log_type", "audit",
			"audit_id", event.ID,
		)
	}
	return nil
}
