// Package config holds the live, whitelisted defense configuration.
// Policies read it on every evaluation; operators retune it at runtime
// through an atomic bulk update.
package config

import (
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"dochost/internal/defense/models"
)

// Whitelisted patch keys. Anything else in a patch is silently ignored.
const (
	KeyAccountLockThreshold = "account_lock_threshold"
	KeyAccountLockWindow    = "account_lock_window"
	KeyAccountLockDuration  = "account_lock_duration"
	KeyIPBlockThreshold     = "ip_block_threshold"
	KeyIPBlockWindow        = "ip_block_window"
	KeyIPBlockDuration      = "ip_block_duration"
	KeyGlobalRateThreshold  = "global_rate_threshold"
	KeyGlobalRateWindow     = "global_rate_window"
	KeyGlobalBlockDuration  = "global_block_duration"
	KeyFakeIPEnabled        = "fake_ip_enabled"
	KeyFakeIPList           = "fake_ip_list"
)

// Defaults returns the stock tuning: account lockout 5 attempts / 300s window
// / 600s lock, address blocking 50/60s/600s, global limiting 1000/60s with a
// 60s block.
func Defaults() models.Settings {
	return models.Settings{
		AccountLockThreshold: 5,
		AccountLockWindow:    300 * time.Second,
		AccountLockDuration:  600 * time.Second,

		IPBlockThreshold: 50,
		IPBlockWindow:    60 * time.Second,
		IPBlockDuration:  600 * time.Second,

		GlobalRateThreshold: 1000,
		GlobalRateWindow:    60 * time.Second,
		GlobalBlockDuration: 60 * time.Second,
	}
}

// Store is the mutable configuration shared by all policies. Reads always
// observe the latest committed bulk update; a patch is applied under one
// write lock so no evaluation sees a half-merged state.
type Store struct {
	mu       sync.RWMutex
	settings models.Settings
}

// NewStore creates a Store seeded with the given settings.
func NewStore(initial models.Settings) *Store {
	return &Store{settings: initial}
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.settings
	out.FakeIPList = append([]string(nil), s.settings.FakeIPList...)
	return out
}

// ApplyResult reports which whitelisted keys a patch changed and which were
// rejected for carrying invalid values. Unrecognized keys appear in neither.
type ApplyResult struct {
	Applied  []string `json:"applied"`
	Rejected []string `json:"rejected,omitempty"`
}

// Apply atomically merges recognized keys from the patch. Thresholds must be
// positive integers; windows and durations must be non-negative second
// counts. A key with an invalid value is rejected and leaves the previous
// value untouched; the rest of the patch still lands.
func (s *Store) Apply(patch map[string]any) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ApplyResult
	apply := func(key string, ok bool) {
		if ok {
			res.Applied = append(res.Applied, key)
		} else {
			res.Rejected = append(res.Rejected, key)
		}
	}

	for key, raw := range patch {
		switch key {
		case KeyAccountLockThreshold:
			apply(key, setThreshold(&s.settings.AccountLockThreshold, raw))
		case KeyAccountLockWindow:
			apply(key, setSeconds(&s.settings.AccountLockWindow, raw))
		case KeyAccountLockDuration:
			apply(key, setSeconds(&s.settings.AccountLockDuration, raw))
		case KeyIPBlockThreshold:
			apply(key, setThreshold(&s.settings.IPBlockThreshold, raw))
		case KeyIPBlockWindow:
			apply(key, setSeconds(&s.settings.IPBlockWindow, raw))
		case KeyIPBlockDuration:
			apply(key, setSeconds(&s.settings.IPBlockDuration, raw))
		case KeyGlobalRateThreshold:
			apply(key, setThreshold(&s.settings.GlobalRateThreshold, raw))
		case KeyGlobalRateWindow:
			apply(key, setSeconds(&s.settings.GlobalRateWindow, raw))
		case KeyGlobalBlockDuration:
			apply(key, setSeconds(&s.settings.GlobalBlockDuration, raw))
		case KeyFakeIPEnabled:
			apply(key, setBool(&s.settings.FakeIPEnabled, raw))
		case KeyFakeIPList:
			apply(key, setStringList(&s.settings.FakeIPList, raw))
		default:
			// Unrecognized keys are ignored, not errors.
		}
	}

	sort.Strings(res.Applied)
	sort.Strings(res.Rejected)
	return res
}

// numeric coerces the value shapes a JSON decode or TOML load can produce.
func numeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func setThreshold(dst *int, raw any) bool {
	f, ok := numeric(raw)
	if !ok || f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
		return false
	}
	*dst = int(f)
	return true
}

func setSeconds(dst *time.Duration, raw any) bool {
	f, ok := numeric(raw)
	if !ok || f < 0 || f > math.MaxInt32 {
		return false
	}
	*dst = time.Duration(f * float64(time.Second))
	return true
}

func setBool(dst *bool, raw any) bool {
	v, ok := raw.(bool)
	if !ok {
		return false
	}
	*dst = v
	return true
}

func setStringList(dst *[]string, raw any) bool {
	switch v := raw.(type) {
	case []string:
		*dst = append([]string(nil), v...)
		return true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return false
			}
			out = append(out, str)
		}
		*dst = out
		return true
	default:
		return false
	}
}
