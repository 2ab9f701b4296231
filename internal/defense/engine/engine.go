// Package engine implements the adaptive login throttling engine: sliding
// window counters per account, per client address, and globally, with
// threshold breaches converted into time-bounded denials.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dochost/internal/defense/config"
	"dochost/internal/defense/metrics"
	"dochost/internal/defense/models"
	"dochost/internal/defense/tracer"
	"dochost/internal/defense/window"
	"dochost/pkg/requestcontext"
)

// Engine owns all throttling state. A single mutex covers each evaluation
// end to end, so check-then-record for one attempt is atomic with respect to
// concurrent attempts for the same account or address, and ResetAll can
// never expose a partially cleared view. Attempt volume is bounded by
// network I/O, so one lock is the simple correct choice here.
type Engine struct {
	settings *config.Store

	mu                 sync.Mutex
	accounts           map[string]*window.Counter
	accountUnlockAt    map[string]time.Time
	addresses          map[string]*window.Counter
	addressUnblockAt   map[string]time.Time
	global             window.Counter
	globalBlockedUntil time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func New(settings *config.Store, opts ...Option) (*Engine, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}

	e := &Engine{
		settings:         settings,
		accounts:         make(map[string]*window.Counter),
		accountUnlockAt:  make(map[string]time.Time),
		addresses:        make(map[string]*window.Counter),
		addressUnblockAt: make(map[string]time.Time),
		tracer:           tracer.NewNoop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Evaluate decides whether one authentication attempt may proceed.
// Precedence is strict: global block, then address block, then account lock;
// the coarsest check sheds load before any finer-grained bookkeeping. Only
// an attempt that passes all three is metered, so hammering a locked account
// cannot keep extending its own lock. A breach triggered by this attempt
// applies to the next one; this attempt is still admitted.
//
// For a denied attempt the second return value is the deadline the active
// denial lifts at, read atomically with the decision so the transport can
// emit an accurate Retry-After. It is zero for admitted attempts.
func (e *Engine) Evaluate(ctx context.Context, account, address string) (models.Decision, time.Time) {
	now := requestcontext.Now(ctx)

	_, span := e.tracer.Start(ctx, "defense.evaluate")
	decision, retryAt := e.evaluate(ctx, account, address, now)
	span.SetAttributes(tracer.String("decision", decision.String()))
	span.End(nil)

	if e.metrics != nil {
		e.metrics.ObserveDecision(decision.String())
	}
	return decision, retryAt
}

func (e *Engine) evaluate(ctx context.Context, account, address string, now time.Time) (models.Decision, time.Time) {
	cfg := e.settings.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	if now.Before(e.globalBlockedUntil) {
		return models.DecisionGlobalBlocked, e.globalBlockedUntil
	}
	if until, ok := e.addressUnblockAt[address]; ok && now.Before(until) {
		return models.DecisionAddressBlocked, until
	}
	if until, ok := e.accountUnlockAt[account]; ok && now.Before(until) {
		return models.DecisionAccountLocked, until
	}

	e.record(ctx, account, address, now, cfg)
	return models.DecisionAdmitted, time.Time{}
}

// record meters the attempt on all three windows and fires any transitions
// the new counts cause. Caller holds e.mu.
func (e *Engine) record(ctx context.Context, account, address string, now time.Time, cfg models.Settings) {
	acct := e.counterFor(e.accounts, account)
	acct.Record(now)
	if acct.Count(now, cfg.AccountLockWindow) >= cfg.AccountLockThreshold {
		if e.extendDeadline(e.accountUnlockAt, account, now.Add(cfg.AccountLockDuration)) {
			if e.metrics != nil {
				e.metrics.IncrementAccountLockouts()
				e.metrics.SetLockedAccounts(countActive(e.accountUnlockAt, now))
			}
			e.logAudit(ctx, "account_lockout_triggered",
				"account", account,
				"unlock_at", e.accountUnlockAt[account],
			)
		}
	}

	addr := e.counterFor(e.addresses, address)
	addr.Record(now)
	if addr.Count(now, cfg.IPBlockWindow) >= cfg.IPBlockThreshold {
		if e.extendDeadline(e.addressUnblockAt, address, now.Add(cfg.IPBlockDuration)) {
			if e.metrics != nil {
				e.metrics.IncrementAddressBlocks()
				e.metrics.SetBlockedAddresses(countActive(e.addressUnblockAt, now))
			}
			e.logAudit(ctx, "address_block_triggered",
				"address", address,
				"unblock_at", e.addressUnblockAt[address],
			)
		}
	}

	// The global window reflects true aggregate load, so it is metered for
	// every attempt that reaches this stage regardless of per-key outcomes.
	e.global.Record(now)
	if e.global.Count(now, cfg.GlobalRateWindow) >= cfg.GlobalRateThreshold {
		deadline := now.Add(cfg.GlobalBlockDuration)
		if deadline.After(e.globalBlockedUntil) {
			e.globalBlockedUntil = deadline
			if e.metrics != nil {
				e.metrics.IncrementGlobalBlocks()
			}
			e.logAudit(ctx, "global_block_triggered",
				"blocked_until", deadline,
			)
		}
	}
}

func (e *Engine) counterFor(counters map[string]*window.Counter, key string) *window.Counter {
	c, ok := counters[key]
	if !ok {
		c = &window.Counter{}
		counters[key] = c
	}
	return c
}

// extendDeadline pushes a deadline forward, never backward. Returns whether
// the stored deadline changed.
func (e *Engine) extendDeadline(deadlines map[string]time.Time, key string, deadline time.Time) bool {
	if existing, ok := deadlines[key]; ok && !deadline.After(existing) {
		return false
	}
	deadlines[key] = deadline
	return true
}

// ResetAll clears every window, lock, and block, atomically with respect to
// concurrent evaluations. Used when configuration changes should
// retroactively lift existing denials.
func (e *Engine) ResetAll(ctx context.Context) {
	e.mu.Lock()
	e.accounts = make(map[string]*window.Counter)
	e.accountUnlockAt = make(map[string]time.Time)
	e.addresses = make(map[string]*window.Counter)
	e.addressUnblockAt = make(map[string]time.Time)
	e.global = window.Counter{}
	e.globalBlockedUntil = time.Time{}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.IncrementStateResets()
		e.metrics.SetLockedAccounts(0)
		e.metrics.SetBlockedAddresses(0)
	}
	e.logAudit(ctx, "defense_state_reset")
}

// Inspect returns a read-only snapshot of configuration plus live denial
// state. Deadlines already expired at the time of the call are omitted.
// Inspect never mutates engine state.
func (e *Engine) Inspect(ctx context.Context) models.Snapshot {
	now := requestcontext.Now(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	snap := models.Snapshot{
		Settings:         e.settings.Snapshot(),
		AccountUnlockAt:  activeDeadlines(e.accountUnlockAt, now),
		AddressUnblockAt: activeDeadlines(e.addressUnblockAt, now),
	}
	if now.Before(e.globalBlockedUntil) {
		until := e.globalBlockedUntil
		snap.GlobalBlockedUntil = &until
	}
	return snap
}

// Sweep drops empty windows and expired deadlines so long-running processes
// do not accumulate state for every account and address ever seen. Purely a
// memory bound; expiry itself is always a query-time comparison.
func (e *Engine) Sweep(ctx context.Context) models.SweepResult {
	now := requestcontext.Now(ctx)
	cfg := e.settings.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	var res models.SweepResult
	res.WindowsDropped += sweepCounters(e.accounts, now, cfg.AccountLockWindow)
	res.WindowsDropped += sweepCounters(e.addresses, now, cfg.IPBlockWindow)
	res.DeadlinesDropped += sweepDeadlines(e.accountUnlockAt, now)
	res.DeadlinesDropped += sweepDeadlines(e.addressUnblockAt, now)
	e.global.Prune(now, cfg.GlobalRateWindow)

	if e.metrics != nil {
		e.metrics.SetLockedAccounts(len(e.accountUnlockAt))
		e.metrics.SetBlockedAddresses(len(e.addressUnblockAt))
	}
	return res
}

func sweepCounters(counters map[string]*window.Counter, now time.Time, window time.Duration) int {
	dropped := 0
	for key, c := range counters {
		c.Prune(now, window)
		if c.Empty() {
			delete(counters, key)
			dropped++
		}
	}
	return dropped
}

func sweepDeadlines(deadlines map[string]time.Time, now time.Time) int {
	dropped := 0
	for key, until := range deadlines {
		if !now.Before(until) {
			delete(deadlines, key)
			dropped++
		}
	}
	return dropped
}

func activeDeadlines(deadlines map[string]time.Time, now time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(deadlines))
	for key, until := range deadlines {
		if now.Before(until) {
			out[key] = until
		}
	}
	return out
}

func countActive(deadlines map[string]time.Time, now time.Time) int {
	n := 0
	for _, until := range deadlines {
		if now.Before(until) {
			n++
		}
	}
	return n
}

func (e *Engine) logAudit(ctx context.Context, event string, attrs ...any) {
	if e.logger == nil {
		return
	}
	args := append(attrs, "event", event, "log_type", "audit")
	e.logger.InfoContext(ctx, event, args...)
}
