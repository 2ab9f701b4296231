package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dochost/internal/defense/config"
	"dochost/internal/defense/models"
	"dochost/internal/platform/middleware"
	dErrors "dochost/pkg/domain-errors"
	"dochost/pkg/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

type Service interface {
	Configure(ctx context.Context, patch map[string]any) config.ApplyResult
	ResetState(ctx context.Context)
	Inspect(ctx context.Context) models.Snapshot
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/config", h.HandleUpdateConfig)
	r.Post("/admin/reset_state", h.HandleResetState)
	r.Get("/admin/state", h.HandleGetState)
}

// HandleUpdateConfig implements POST /admin/config.
// Input: a flat JSON object of configuration keys, e.g.
// { "account_lock_threshold": 10, "ip_block_window": 120 }
// Output: { "ok": true, "applied": [...], "rejected": [...] }
func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	// Limit request body size to prevent DoS via large payloads
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024) // 64KB max

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.logger.WarnContext(ctx, "failed to decode config update request",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid JSON in request body"))
		return
	}

	res := h.service.Configure(ctx, patch)

	h.logger.InfoContext(ctx, "config updated",
		"applied", res.Applied,
		"rejected", res.Rejected,
		"request_id", requestID,
	)

	httputil.WriteJSON(w, http.StatusOK, updateConfigResponse{
		OK:       true,
		Applied:  res.Applied,
		Rejected: res.Rejected,
	})
}

// HandleResetState implements POST /admin/reset_state.
// Clears every counter, lock, and block in one step.
// Output: { "ok": true }
func (h *Handler) HandleResetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	h.service.ResetState(ctx)

	h.logger.InfoContext(ctx, "defense state reset", "request_id", requestID)

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleGetState implements GET /admin/state.
// Returns the live configuration plus active locks and blocks. Durations are
// reported in seconds, deadlines as RFC 3339 timestamps.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap := h.service.Inspect(ctx)
	httputil.WriteJSON(w, http.StatusOK, newStateResponse(snap))
}

type updateConfigResponse struct {
	OK       bool     `json:"ok"`
	Applied  []string `json:"applied"`
	Rejected []string `json:"rejected"`
}

type stateResponse struct {
	Config             configView           `json:"config"`
	AccountLocks       map[string]time.Time `json:"account_locks"`
	AddressBlocks      map[string]time.Time `json:"address_blocks"`
	GlobalBlockedUntil *time.Time           `json:"global_blocked_until,omitempty"`
}

type configView struct {
	AccountLockThreshold int      `json:"account_lock_threshold"`
	AccountLockWindow    float64  `json:"account_lock_window"`
	AccountLockDuration  float64  `json:"account_lock_duration"`
	IPBlockThreshold     int      `json:"ip_block_threshold"`
	IPBlockWindow        float64  `json:"ip_block_window"`
	IPBlockDuration      float64  `json:"ip_block_duration"`
	GlobalRateThreshold  int      `json:"global_rate_threshold"`
	GlobalRateWindow     float64  `json:"global_rate_window"`
	GlobalBlockDuration  float64  `json:"global_block_duration"`
	FakeIPEnabled        bool     `json:"fake_ip_enabled"`
	FakeIPList           []string `json:"fake_ip_list"`
}

func newStateResponse(snap models.Snapshot) stateResponse {
	s := snap.Settings
	resp := stateResponse{
		Config: configView{
			AccountLockThreshold: s.AccountLockThreshold,
			AccountLockWindow:    s.AccountLockWindow.Seconds(),
			AccountLockDuration:  s.AccountLockDuration.Seconds(),
			IPBlockThreshold:     s.IPBlockThreshold,
			IPBlockWindow:        s.IPBlockWindow.Seconds(),
			IPBlockDuration:      s.IPBlockDuration.Seconds(),
			GlobalRateThreshold:  s.GlobalRateThreshold,
			GlobalRateWindow:     s.GlobalRateWindow.Seconds(),
			GlobalBlockDuration:  s.GlobalBlockDuration.Seconds(),
			FakeIPEnabled:        s.FakeIPEnabled,
			FakeIPList:           s.FakeIPList,
		},
		AccountLocks:       snap.AccountUnlockAt,
		AddressBlocks:      snap.AddressUnblockAt,
		GlobalBlockedUntil: snap.GlobalBlockedUntil,
	}
	if resp.AccountLocks == nil {
		resp.AccountLocks = map[string]time.Time{}
	}
	if resp.AddressBlocks == nil {
		resp.AddressBlocks = map[string]time.Time{}
	}
	if resp.Config.FakeIPList == nil {
		resp.Config.FakeIPList = []string{}
	}
	return resp
}
