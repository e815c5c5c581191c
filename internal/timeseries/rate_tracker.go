// Package timeseries tracks how fast results are ingested over rolling
// time windows.
//
// Add is lock-free; Sample and Stats take a lock on the sample ring.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringSize is the number of samples kept. At the default refresh
	// interval of one second that covers five minutes.
	ringSize = 300

	windowShort = 10 * time.Second
	windowLong  = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is the cumulative count at a point in time.
type sample struct {
	at    time.Time
	count int64
}

// RateTracker counts events and reports their rate over recent windows.
//
// Usage:
//
//	tracker := NewRateTracker()
//	tracker.Add(1)     // per stored row
//	tracker.Sample()   // periodically
//	stats := tracker.Stats()
type RateTracker struct {
	total atomic.Int64

	mu       sync.RWMutex
	samples  []sample
	writeIdx int
	start    time.Time

	clock Clock
}

// RateStats is a point-in-time view of a RateTracker.
type RateStats struct {
	Total int64

	// Events per second.
	Short   float64 // last 10 seconds
	Long    float64 // last 60 seconds
	Overall float64 // since start or the last Reset
}

// NewRateTracker creates a tracker using the wall clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples: make([]sample, 0, ringSize),
		start:   now,
		clock:   clock,
	}
	t.samples = append(t.samples, sample{at: now})
	return t
}

// Add counts n events. Non-positive n is ignored.
func (t *RateTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// Sample records the current total. Call it periodically; the windows are
// only as fine as the sampling.
func (t *RateTracker) Sample() {
	s := sample{at: t.clock.Now(), count: t.total.Load()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringSize
}

// Stats computes the current rates. With too little history a window falls
// back to the oldest sample available.
func (t *RateTracker) Stats() RateStats {
	now := t.clock.Now()
	total := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{Total: total}
	if elapsed := now.Sub(t.start).Seconds(); elapsed > 0 {
		stats.Overall = float64(total) / elapsed
	}
	stats.Short = t.rateOver(now, total, windowShort)
	stats.Long = t.rateOver(now, total, windowLong)
	return stats
}

// rateOver must be called with mu held.
func (t *RateTracker) rateOver(now time.Time, total int64, window time.Duration) float64 {
	target := now.Add(-window)

	// The newest sample at or before the window start.
	var best *sample
	for i := range t.samples {
		s := &t.samples[i]
		if s.at.After(target) {
			continue
		}
		if best == nil || s.at.After(best.at) {
			best = s
		}
	}
	if best == nil {
		best = t.oldest()
	}
	if best == nil {
		return 0
	}

	elapsed := now.Sub(best.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-best.count) / elapsed
}

// oldest must be called with mu held.
func (t *RateTracker) oldest() *sample {
	switch {
	case len(t.samples) == 0:
		return nil
	case len(t.samples) < ringSize:
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// Reset clears the count and history.
func (t *RateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.Store(0)
	t.samples = append(t.samples[:0], sample{at: now})
	t.writeIdx = 0
	t.start = now
}

// SampleCount returns the number of samples held.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
