package content

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dochost/internal/audit"
	"dochost/internal/platform/middleware"
	dErrors "dochost/pkg/domain-errors"
	"dochost/pkg/httputil"
)

// maxUploadBytes caps a single upload. Multipart overhead counts toward it.
const maxUploadBytes = 32 << 20 // 32MB

type Option func(*Handler)

func WithAuditRecorder(recorder *audit.Recorder) Option {
	return func(h *Handler) {
		h.recorder = recorder
	}
}

type Handler struct {
	store    *Store
	logger   *slog.Logger
	recorder *audit.Recorder
}

func NewHandler(store *Store, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/upload", h.HandleUpload)
	r.Post("/submit", h.HandleSubmit)
}

// HandleUpload implements POST /upload. Expects a multipart form with a
// "file" part.
// Output: { "ok": true, "filename": "...", "sha256": "...", "size": n }
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.WarnContext(ctx, "upload missing file part",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing file"))
		return
	}
	defer file.Close()

	stored, err := h.store.Save(header.Filename, file)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to store upload",
			"error", err,
			"filename", header.Filename,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "could not store upload"))
		return
	}

	h.audit(ctx, "file_uploaded", map[string]any{
		"filename": stored.Name,
		"sha256":   stored.SHA256,
		"size":     stored.Size,
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"filename": stored.Name,
		"sha256":   stored.SHA256,
		"size":     stored.Size,
	})
}

// HandleSubmit implements POST /submit. Accepts a classic form post and
// records it to the audit log.
// Output: { "ok": true }
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, 64*1024) // 64KB max

	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "failed to parse submission form",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed form submission"))
		return
	}

	fields := make(map[string]any, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) == 1 {
			fields[key] = values[0]
		} else {
			fields[key] = values
		}
	}

	h.audit(ctx, "form_submitted", fields)

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) audit(ctx context.Context, event string, details map[string]any) {
	h.logger.InfoContext(ctx, event,
		"event", event,
		"log_type", "audit",
	)
	if h.recorder != nil {
		_ = h.recorder.Record(ctx, audit.Event{Event: event, Details: details})
	}
}
