package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CounterSuite struct {
	suite.Suite
	base time.Time
}

func TestCounterSuite(t *testing.T) {
	suite.Run(t, new(CounterSuite))
}

func (s *CounterSuite) SetupTest() {
	s.base = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func (s *CounterSuite) TestRecordAndCount() {
	c := &Counter{}

	s.Run("empty counter counts zero", func() {
		s.Equal(0, c.Count(s.base, 5*time.Minute))
	})

	s.Run("records accumulate within the window", func() {
		c.Record(s.base)
		c.Record(s.base.Add(10 * time.Second))
		c.Record(s.base.Add(20 * time.Second))
		s.Equal(3, c.Count(s.base.Add(30*time.Second), 5*time.Minute))
	})
}

func (s *CounterSuite) TestPruneDropsOnlyStaleEntries() {
	c := &Counter{}
	c.Record(s.base)
	c.Record(s.base.Add(1 * time.Minute))
	c.Record(s.base.Add(4 * time.Minute))

	// At base+5m30s with a 5m window the first entry is stale.
	now := s.base.Add(5*time.Minute + 30*time.Second)
	s.Equal(2, c.Count(now, 5*time.Minute))

	// An entry exactly at the cutoff is retained (t >= now-window).
	c2 := &Counter{}
	c2.Record(s.base)
	s.Equal(1, c2.Count(s.base.Add(5*time.Minute), 5*time.Minute))
}

func (s *CounterSuite) TestPruneIsIdempotent() {
	c := &Counter{}
	for i := range 10 {
		c.Record(s.base.Add(time.Duration(i) * time.Second))
	}

	now := s.base.Add(1 * time.Minute)
	c.Prune(now, 55*time.Second)
	first := c.Count(now, 55*time.Second)
	c.Prune(now, 55*time.Second)
	second := c.Count(now, 55*time.Second)

	s.Equal(first, second, "pruning twice with the same now must not change the result")
}

func (s *CounterSuite) TestZeroWindowRetainsOnlyCurrentInstant() {
	c := &Counter{}
	c.Record(s.base)
	c.Record(s.base.Add(time.Second))

	s.Equal(1, c.Count(s.base.Add(time.Second), 0))
}

func (s *CounterSuite) TestEmpty() {
	c := &Counter{}
	s.True(c.Empty())

	c.Record(s.base)
	s.False(c.Empty())

	c.Prune(s.base.Add(time.Hour), time.Minute)
	s.True(c.Empty())
}
