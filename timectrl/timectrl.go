package timectrl

import (
	"sync"
	"time"
)

// Clock supplies the instant at which orbital positions are evaluated. The
// orbit observer and tests depend on this interface rather than on time.Now
// so that a pass can be replayed at a chosen time.
type Clock interface {
	// Now returns the current (possibly shifted) time in UTC.
	Now() time.Time
}

// Wall returns a Clock that follows the system clock.
func Wall() Clock { return wallClock{} }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Shifted returns a Clock that runs at wall-clock rate but offset by d. A
// positive offset evaluates positions in the future, which is handy for
// exercising a pass that has not started yet.
func Shifted(d time.Duration) Clock {
	if d == 0 {
		return Wall()
	}
	return shiftedClock{offset: d}
}

type shiftedClock struct {
	offset time.Duration
}

func (c shiftedClock) Now() time.Time { return time.Now().UTC().Add(c.offset) }

// ManualClock only moves when told to.
type ManualClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewManualClock constructs a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{current: start.UTC()}
}

// Now returns the frozen time.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
