// Package window implements the sliding-window attempt counter shared by the
// account, address, and global policies.
package window

import "time"

// Counter holds the ordered attempt timestamps for one key. Entries are
// appended by Record and trimmed from the front by Prune; insertion order is
// non-decreasing because callers always pass the request-scoped now.
//
// Counter is not safe for concurrent use; the engine serializes access.
type Counter struct {
	timestamps []time.Time
}

// Record appends an attempt timestamp unconditionally.
func (c *Counter) Record(now time.Time) {
	c.timestamps = append(c.timestamps, now)
}

// Prune discards every leading entry older than now-window, in place.
// Pruning twice with the same now yields the same result as once.
func (c *Counter) Prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(c.timestamps); i++ {
		if !c.timestamps[i].Before(cutoff) {
			break
		}
	}
	c.timestamps = c.timestamps[i:]
}

// Count prunes stale entries and returns the number of attempts remaining in
// the window. Must be used for every threshold comparison so stale entries
// never count.
func (c *Counter) Count(now time.Time, window time.Duration) int {
	c.Prune(now, window)
	return len(c.timestamps)
}

// Empty reports whether no attempts remain recorded.
func (c *Counter) Empty() bool {
	return len(c.timestamps) == 0
}
