// Package notify coalesces high-frequency "new data" signals into a bounded
// rate of refresh callbacks.
package notify

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between throttled fires.
const DefaultInterval = time.Second

// Throttle fires fn at most once per interval. Signals that arrive inside
// the interval are dropped; Flush fires unconditionally so the last batch is
// never lost.
type Throttle struct {
	interval time.Duration
	fn       func()
	now      func() time.Time

	mu       sync.Mutex
	lastFire time.Time
	fired    int64
}

// NewThrottle creates a throttle calling fn.
func NewThrottle(interval time.Duration, fn func()) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{
		interval: interval,
		fn:       fn,
		now:      time.Now,
	}
}

// Signal fires fn if at least the interval has elapsed since the last fire.
// It reports whether fn was called.
func (t *Throttle) Signal() bool {
	t.mu.Lock()
	now := t.now()
	if !t.lastFire.IsZero() && now.Sub(t.lastFire) < t.interval {
		t.mu.Unlock()
		return false
	}
	t.lastFire = now
	t.fired++
	t.mu.Unlock()

	t.fn()
	return true
}

// Flush fires fn regardless of the interval.
func (t *Throttle) Flush() {
	t.mu.Lock()
	t.lastFire = t.now()
	t.fired++
	t.mu.Unlock()

	t.fn()
}

// Fired returns the number of times fn has been called.
func (t *Throttle) Fired() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}
