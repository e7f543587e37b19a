package session

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// throttle coalesces hover-only broadcasts to at most one per interval.
// Committed changes always broadcast and reset the window.
type throttle struct {
	clock    clockwork.Clock
	interval time.Duration
	last     time.Time
	timer    clockwork.Timer
}

func newThrottle(clock clockwork.Clock, interval time.Duration) *throttle {
	return &throttle{clock: clock, interval: interval}
}

// Allow reports whether a broadcast may go out now. When it may not, a
// trailing flush is scheduled on C.
func (t *throttle) Allow() bool {
	if t.interval <= 0 || t.last.IsZero() {
		return true
	}
	wait := t.last.Add(t.interval).Sub(t.clock.Now())
	if wait <= 0 {
		return true
	}
	if t.timer == nil {
		t.timer = t.clock.NewTimer(wait)
	}
	return false
}

// Sent records a broadcast and cancels any pending flush it supersedes.
func (t *throttle) Sent() {
	t.last = t.clock.Now()
	t.Stop()
}

// Fired clears the pending flush after C delivered.
func (t *throttle) Fired() {
	t.timer = nil
}

func (t *throttle) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *throttle) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.Chan()
}
