package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the start time of clocks created with a zero time:
// 2024-01-01T00:00:00Z.
var DefaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FixedClock is a wall clock that only moves when told to.
//
// Stores built with a FixedClock write predictable last_imported values, so
// the same scenario always produces the same map rows.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock reading start. A zero start uses DefaultEpoch.
func NewFixedClock(start time.Time) *FixedClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	return &FixedClock{now: start}
}

// Now returns the current reading.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
