// Package ttl stamps and evaluates record expiry. Expiry is stored as an
// absolute Unix timestamp in milliseconds.
package ttl

import (
	"sync"
	"time"
)

// Clock provides the current time. Tests substitute a ManualClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock fixed at now.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Millis converts t to Unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// StampExpiry returns the absolute expiry for a record written at now with the
// given time-to-live. A zero ttl yields an expiry equal to now, which is
// already invisible.
func StampExpiry(now time.Time, ttl time.Duration) int64 {
	return Millis(now.Add(ttl))
}

// IsVisible reports whether a row with the given expiry is readable at now.
// Rows without an expiry never expire; otherwise the expiry must be strictly
// in the future.
func IsVisible(expiry *int64, now time.Time) bool {
	return expiry == nil || *expiry > Millis(now)
}

// ExpiryTime converts a stored expiry to a time. Nil yields the zero time.
func ExpiryTime(expiry *int64) time.Time {
	if expiry == nil {
		return time.Time{}
	}
	return time.UnixMilli(*expiry)
}
