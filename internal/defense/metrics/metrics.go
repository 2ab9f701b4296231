package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DecisionsTotal         *prometheus.CounterVec
	AccountLockoutsTotal   prometheus.Counter
	AddressBlocksTotal     prometheus.Counter
	GlobalBlocksTotal      prometheus.Counter
	LockedAccounts         prometheus.Gauge
	BlockedAddresses       prometheus.Gauge
	StateResetsTotal       prometheus.Counter
	ConfigUpdatesTotal     *prometheus.CounterVec
	SweepRunsTotal         *prometheus.CounterVec
	SweepDurationSeconds   prometheus.Histogram
	SweepEntriesSweptTotal prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the singleton Metrics instance.
// Safe to call multiple times; metrics are only registered once.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dochost_defense_decisions_total",
			Help: "Login attempt evaluations by decision outcome",
		}, []string{"decision"}),
		AccountLockoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dochost_defense_account_lockouts_total",
			Help: "Total number of account lockout transitions",
		}),
		AddressBlocksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dochost_defense_address_blocks_total",
			Help: "Total number of client address block transitions",
		}),
		GlobalBlocksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dochost_defense_global_blocks_total",
			Help: "Total number of global rate limit block transitions",
		}),
		LockedAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dochost_defense_locked_accounts",
			Help: "Current number of accounts inside a lockout window",
		}),
		BlockedAddresses: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dochost_defense_blocked_addresses",
			Help: "Current number of addresses inside a block window",
		}),
		StateResetsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dochost_defense_state_resets_total",
			Help: "Total number of operator-initiated full state resets",
		}),
		ConfigUpdatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dochost_defense_config_updates_total",
			Help: "Configuration patch keys by acceptance status",
		}, []string{"status"}),
		SweepRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dochost_defense_sweep_runs_total",
			Help: "Total number of maintenance sweep runs",
		}, []string{"status"}),
		SweepDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "dochost_defense_sweep_duration_seconds",
			Help: "Duration of maintenance sweep runs in seconds",
		}),
		SweepEntriesSweptTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dochost_defense_sweep_entries_swept_total",
			Help: "Total number of expired windows and deadlines removed by sweeps",
		}),
	}
}

func (m *Metrics) ObserveDecision(decision string) {
	m.DecisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementAccountLockouts() {
	m.AccountLockoutsTotal.Inc()
}

func (m *Metrics) IncrementAddressBlocks() {
	m.AddressBlocksTotal.Inc()
}

func (m *Metrics) IncrementGlobalBlocks() {
	m.GlobalBlocksTotal.Inc()
}

func (m *Metrics) SetLockedAccounts(count int) {
	m.LockedAccounts.Set(float64(count))
}

func (m *Metrics) SetBlockedAddresses(count int) {
	m.BlockedAddresses.Set(float64(count))
}

func (m *Metrics) IncrementStateResets() {
	m.StateResetsTotal.Inc()
}

func (m *Metrics) AddConfigUpdates(status string, count int) {
	m.ConfigUpdatesTotal.WithLabelValues(status).Add(float64(count))
}

func (m *Metrics) IncrementSweepRuns(status string) {
	m.SweepRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSweepDuration(durationSeconds float64) {
	m.SweepDurationSeconds.Observe(durationSeconds)
}

func (m *Metrics) AddEntriesSwept(count int) {
	m.SweepEntriesSweptTotal.Add(float64(count))
}
