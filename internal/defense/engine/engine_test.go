package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dochost/internal/defense/config"
	"dochost/internal/defense/models"
	"dochost/pkg/requestcontext"
)

type EngineSuite struct {
	suite.Suite
	store  *config.Store
	engine *Engine
	base   time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.store = config.NewStore(config.Defaults())
	var err error
	s.engine, err = New(s.store)
	s.Require().NoError(err)
	s.base = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func (s *EngineSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.base.Add(offset))
}

// eval discards the retry deadline; tests that care about it call Evaluate
// directly.
func (s *EngineSuite) eval(ctx context.Context, account, address string) models.Decision {
	decision, _ := s.engine.Evaluate(ctx, account, address)
	return decision
}

func (s *EngineSuite) TestNewRequiresSettings() {
	_, err := New(nil)
	s.Error(err)
}

func (s *EngineSuite) TestAccountLockoutAtThreshold() {
	// Threshold 5 in a 300s window: four attempts stay admitted.
	for i := range 4 {
		decision := s.eval(s.at(time.Duration(i)*time.Second), "alice", "203.0.113.1")
		s.Equal(models.DecisionAdmitted, decision)
	}

	// The fifth attempt breaches the threshold but is itself still admitted;
	// the lock applies to the next attempt.
	s.Equal(models.DecisionAdmitted, s.eval(s.at(4*time.Second), "alice", "203.0.113.1"))
	s.Equal(models.DecisionAccountLocked, s.eval(s.at(5*time.Second), "alice", "203.0.113.1"))

	s.Run("other accounts unaffected", func() {
		s.Equal(models.DecisionAdmitted, s.eval(s.at(6*time.Second), "bob", "203.0.113.2"))
	})
}

func (s *EngineSuite) TestAccountLockExpires() {
	s.lockAccount("alice", "203.0.113.1")

	// Lock duration is 600s from the breaching attempt at +4s.
	s.Equal(models.DecisionAccountLocked,
		s.eval(s.at(4*time.Second+599*time.Second), "alice", "203.0.113.1"))

	// Strict comparison: the instant now >= unlockAt the account is free.
	s.Equal(models.DecisionAdmitted,
		s.eval(s.at(4*time.Second+600*time.Second), "alice", "203.0.113.1"))
}

func (s *EngineSuite) TestLockedAccountCannotExtendItsOwnLock() {
	s.lockAccount("alice", "203.0.113.1")

	// Hammering while locked is never metered, so the unlock time is fixed.
	for i := range 20 {
		ctx := s.at(10*time.Second + time.Duration(i)*time.Second)
		s.Equal(models.DecisionAccountLocked, s.eval(ctx, "alice", "203.0.113.1"))
	}

	snap := s.engine.Inspect(s.at(30 * time.Second))
	s.Equal(s.base.Add(4*time.Second+600*time.Second), snap.AccountUnlockAt["alice"])
}

func (s *EngineSuite) TestRelockAfterExpiryExtendsForward() {
	s.lockAccount("alice", "203.0.113.1")
	firstUnlock := s.base.Add(4*time.Second + 600*time.Second)

	// After the lock expires a fresh window can accumulate a new breach.
	offset := 4*time.Second + 600*time.Second
	for i := range 5 {
		ctx := s.at(offset + time.Duration(i)*time.Second)
		s.Equal(models.DecisionAdmitted, s.eval(ctx, "alice", "203.0.113.1"))
	}

	snap := s.engine.Inspect(s.at(offset + 5*time.Second))
	s.True(snap.AccountUnlockAt["alice"].After(firstUnlock), "new lock must extend forward")
}

func (s *EngineSuite) TestAddressBlocking() {
	s.store.Apply(map[string]any{"ip_block_threshold": float64(3)})

	for i := range 3 {
		// Distinct accounts so only the address counter accumulates.
		account := string(rune('a' + i))
		s.Equal(models.DecisionAdmitted,
			s.eval(s.at(time.Duration(i)*time.Second), account, "198.51.100.9"))
	}

	s.Equal(models.DecisionAddressBlocked,
		s.eval(s.at(3*time.Second), "someone-else", "198.51.100.9"))
	s.Equal(models.DecisionAdmitted,
		s.eval(s.at(4*time.Second), "someone-else", "198.51.100.10"),
		"other addresses unaffected")
}

func (s *EngineSuite) TestGlobalBlockPrecedesAddressBlock() {
	s.store.Apply(map[string]any{
		"ip_block_threshold":    float64(2),
		"global_rate_threshold": float64(2),
	})

	// Two attempts breach both the address and global thresholds.
	s.eval(s.at(0), "a", "198.51.100.9")
	s.eval(s.at(time.Second), "b", "198.51.100.9")

	// Both denials are active; global wins.
	s.Equal(models.DecisionGlobalBlocked, s.eval(s.at(2*time.Second), "c", "198.51.100.9"))

	snap := s.engine.Inspect(s.at(2 * time.Second))
	s.NotNil(snap.GlobalBlockedUntil)
	s.Contains(snap.AddressUnblockAt, "198.51.100.9")
}

func (s *EngineSuite) TestGlobalBlockExpiresAndAccountLockSurfaces() {
	s.store.Apply(map[string]any{
		"global_rate_threshold":  float64(3),
		"global_block_duration":  float64(30),
		"account_lock_threshold": float64(3),
	})

	for i := range 3 {
		s.eval(s.at(time.Duration(i)*time.Second), "alice", "203.0.113.1")
	}

	s.Equal(models.DecisionGlobalBlocked, s.eval(s.at(3*time.Second), "alice", "203.0.113.1"))

	// Global block lapses after 30s; the account lock from the same burst is
	// the next denial in precedence order.
	s.Equal(models.DecisionAccountLocked, s.eval(s.at(40*time.Second), "alice", "203.0.113.1"))
}

func (s *EngineSuite) TestDeniedAttemptsAreNotMetered() {
	s.store.Apply(map[string]any{"account_lock_threshold": float64(2), "global_rate_threshold": float64(4)})

	s.eval(s.at(0), "alice", "203.0.113.1")
	s.eval(s.at(time.Second), "alice", "203.0.113.1")

	// These attempts are denied before metering, so the global window stays
	// at two entries and never reaches its threshold.
	for i := range 10 {
		ctx := s.at(2*time.Second + time.Duration(i)*time.Second)
		s.Equal(models.DecisionAccountLocked, s.eval(ctx, "alice", "203.0.113.1"))
	}

	s.Nil(s.engine.Inspect(s.at(12 * time.Second)).GlobalBlockedUntil)
}

func (s *EngineSuite) TestResetAllLiftsEveryDenial() {
	s.store.Apply(map[string]any{
		"ip_block_threshold":    float64(2),
		"global_rate_threshold": float64(2),
	})
	s.eval(s.at(0), "alice", "198.51.100.9")
	s.eval(s.at(time.Second), "alice", "198.51.100.9")
	s.Equal(models.DecisionGlobalBlocked, s.eval(s.at(2*time.Second), "alice", "198.51.100.9"))

	s.engine.ResetAll(context.Background())

	s.Equal(models.DecisionAdmitted, s.eval(s.at(3*time.Second), "alice", "198.51.100.9"))

	snap := s.engine.Inspect(s.at(3 * time.Second))
	s.Empty(snap.AccountUnlockAt)
	s.Empty(snap.AddressUnblockAt)
	s.Nil(snap.GlobalBlockedUntil)
}

func (s *EngineSuite) TestUnreachableThresholdDisablesPolicy() {
	s.store.Apply(map[string]any{
		"account_lock_threshold": float64(999999),
		"ip_block_threshold":     float64(999999),
		"global_rate_threshold":  float64(999999),
	})

	for i := range 200 {
		ctx := s.at(time.Duration(i) * 10 * time.Millisecond)
		s.Equal(models.DecisionAdmitted, s.eval(ctx, "alice", "203.0.113.1"))
	}
}

func (s *EngineSuite) TestWindowExpiryPreventsLock() {
	// Five attempts spread wider than the 300s window never co-occur in one
	// window, so no lock is triggered.
	for i := range 5 {
		ctx := s.at(time.Duration(i) * 301 * time.Second)
		s.Equal(models.DecisionAdmitted, s.eval(ctx, "alice", "203.0.113.1"))
	}
	s.Empty(s.engine.Inspect(s.at(time.Hour)).AccountUnlockAt)
}

func (s *EngineSuite) TestConcurrentAttemptsSingleLockTransition() {
	const threshold = 10
	s.store.Apply(map[string]any{
		"account_lock_threshold": float64(threshold),
		"ip_block_threshold":     float64(999999),
		"global_rate_threshold":  float64(999999),
	})

	ctx := s.at(0)
	var wg sync.WaitGroup
	decisions := make(chan models.Decision, threshold)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range threshold / 2 {
				decisions <- s.eval(ctx, "alice", "203.0.113.1")
			}
		}()
	}
	wg.Wait()
	close(decisions)

	admitted, locked := 0, 0
	for d := range decisions {
		switch d {
		case models.DecisionAdmitted:
			admitted++
		case models.DecisionAccountLocked:
			locked++
		default:
			s.Failf("unexpected decision", "got %s", d)
		}
	}
	s.Equal(threshold, admitted+locked)
	s.LessOrEqual(admitted, threshold, "metered attempts never exceed the threshold")
	s.GreaterOrEqual(admitted, 1)

	// Exactly one lock deadline exists and every later caller sees it.
	snap := s.engine.Inspect(ctx)
	s.Len(snap.AccountUnlockAt, 1)
	s.Equal(models.DecisionAccountLocked, s.eval(ctx, "alice", "203.0.113.1"))
}

func (s *EngineSuite) TestEvaluateReportsRetryDeadline() {
	s.Run("admitted attempts carry no deadline", func() {
		decision, retryAt := s.engine.Evaluate(s.at(0), "alice", "203.0.113.1")
		s.Equal(models.DecisionAdmitted, decision)
		s.True(retryAt.IsZero())
	})

	s.Run("locked account reports its unlock time", func() {
		for i := 1; i < 5; i++ {
			s.eval(s.at(time.Duration(i)*time.Second), "alice", "203.0.113.1")
		}
		decision, retryAt := s.engine.Evaluate(s.at(5*time.Second), "alice", "203.0.113.1")
		s.Equal(models.DecisionAccountLocked, decision)
		s.Equal(s.base.Add(4*time.Second+600*time.Second), retryAt)
	})

	s.Run("global block reports its lift time", func() {
		s.store.Apply(map[string]any{"global_rate_threshold": float64(5)})

		// Bob's attempt is the sixth in the global window; it breaches the
		// threshold but is itself still admitted.
		s.Equal(models.DecisionAdmitted, s.eval(s.at(6*time.Second), "bob", "203.0.113.2"))

		decision, retryAt := s.engine.Evaluate(s.at(7*time.Second), "carol", "203.0.113.3")
		s.Equal(models.DecisionGlobalBlocked, decision)
		s.Equal(s.base.Add(6*time.Second+60*time.Second), retryAt)
	})
}

func (s *EngineSuite) TestSweepDropsExpiredState() {
	s.lockAccount("alice", "203.0.113.1")
	s.eval(s.at(time.Second), "bob", "203.0.113.2")

	// Long after every window and deadline has lapsed.
	res := s.engine.Sweep(s.at(2 * time.Hour))

	s.Equal(4, res.WindowsDropped, "two account windows plus two address windows")
	s.Equal(1, res.DeadlinesDropped, "alice's expired lock deadline")

	snap := s.engine.Inspect(s.at(2 * time.Hour))
	s.Empty(snap.AccountUnlockAt)
}

func (s *EngineSuite) TestInspectDoesNotMutate() {
	s.eval(s.at(0), "alice", "203.0.113.1")

	before := s.engine.Inspect(s.at(time.Second))
	after := s.engine.Inspect(s.at(time.Second))
	s.Equal(before, after)
}

// lockAccount drives "alice" through five attempts at base..base+4s, so the
// lock deadline is base+4s+account_lock_duration.
func (s *EngineSuite) lockAccount(account, address string) {
	s.T().Helper()
	for i := range 5 {
		decision := s.eval(s.at(time.Duration(i)*time.Second), account, address)
		s.Require().Equal(models.DecisionAdmitted, decision)
	}
}
