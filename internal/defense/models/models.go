package models

import "time"

// Decision is the outcome of evaluating one authentication attempt.
type Decision string

const (
	// DecisionAdmitted means the attempt may proceed to credential comparison.
	DecisionAdmitted Decision = "admitted"
	// DecisionAccountLocked means the target account is inside a lockout window.
	DecisionAccountLocked Decision = "account_locked"
	// DecisionAddressBlocked means the client address is inside a block window.
	DecisionAddressBlocked Decision = "address_blocked"
	// DecisionGlobalBlocked means the whole service is shedding login load.
	DecisionGlobalBlocked Decision = "global_blocked"
)

// Admitted reports whether the attempt may proceed.
func (d Decision) Admitted() bool {
	return d == DecisionAdmitted
}

func (d Decision) String() string {
	return string(d)
}

// Settings is the live defense configuration read by every evaluation.
// Thresholds are attempt counts; windows and durations are wall-clock spans.
// Disabling a policy is expressed by raising its threshold out of reach, so
// the evaluation path stays uniform whether or not a policy is active.
type Settings struct {
	AccountLockThreshold int
	AccountLockWindow    time.Duration
	AccountLockDuration  time.Duration

	IPBlockThreshold int
	IPBlockWindow    time.Duration
	IPBlockDuration  time.Duration

	GlobalRateThreshold int
	GlobalRateWindow    time.Duration
	GlobalBlockDuration time.Duration

	// Pass-through flags consumed by the HTTP layer, not the engine.
	FakeIPEnabled bool
	FakeIPList    []string
}

// Snapshot is a read-only dump of configuration plus live denial state,
// produced for operator visibility. Deadlines already in the past are omitted.
type Snapshot struct {
	Settings           Settings
	AccountUnlockAt    map[string]time.Time
	AddressUnblockAt   map[string]time.Time
	GlobalBlockedUntil *time.Time
}

// SweepResult reports what a maintenance sweep removed.
type SweepResult struct {
	WindowsDropped   int
	DeadlinesDropped int
}
