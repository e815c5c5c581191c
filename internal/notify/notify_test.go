package notify

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestThrottle_Spacing(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var calls int
	th := NewThrottle(time.Second, func() { calls++ })
	th.now = clock.Now

	// 0s: first signal fires.
	if !th.Signal() {
		t.Error("first Signal() should fire")
	}
	// Rows every 100ms for 2.5s.
	for i := 0; i < 25; i++ {
		clock.Advance(100 * time.Millisecond)
		th.Signal()
	}
	// Fires at 0s, 1.0s, 2.0s.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	// Process exit: unconditional final fire.
	th.Flush()
	if calls != 4 {
		t.Errorf("calls after Flush = %d, want 4", calls)
	}
	if th.Fired() != 4 {
		t.Errorf("Fired() = %d, want 4", th.Fired())
	}
}

func TestThrottle_InsideInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	th := NewThrottle(time.Second, func() {})
	th.now = clock.Now

	th.Signal()
	clock.Advance(999 * time.Millisecond)
	if th.Signal() {
		t.Error("Signal() inside interval should not fire")
	}
	clock.Advance(time.Millisecond)
	if !th.Signal() {
		t.Error("Signal() at interval boundary should fire")
	}
}

func TestThrottle_DefaultInterval(t *testing.T) {
	th := NewThrottle(0, func() {})
	if th.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", th.interval, DefaultInterval)
	}
}

func TestDebouncer_Collapses(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{}, 4)
	d := NewDebouncer(30*time.Millisecond, func() {
		calls.Add(1)
		done <- struct{}{}
	})

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}
	// Give a stray second fire a chance to show up.
	time.Sleep(60 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if d.Pending() {
		t.Error("Pending() should be false after fire")
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	if !d.Pending() {
		t.Error("Pending() should be true after Trigger")
	}
	d.Stop()
	time.Sleep(50 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}
