// Package timer implements the per-session turn countdown.
//
// A Driver does not run its own goroutine: the owning session selects on C()
// and calls Tick, so expiry is handled in the same serialized loop as client
// commands.
package timer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultInterval = 100 * time.Millisecond

type Driver struct {
	clock    clockwork.Clock
	interval time.Duration
	grace    time.Duration

	ticker    clockwork.Ticker
	active    bool
	remaining time.Duration
	last      time.Time

	suspended   bool
	suspendedAt time.Time
}

// New returns a stopped driver. grace bounds how long a suspension can hold
// the countdown.
func New(clock clockwork.Clock, interval, grace time.Duration) *Driver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Driver{clock: clock, interval: interval, grace: grace}
}

// Start resets the countdown to budget and begins ticking. A suspension in
// progress carries over to the new turn.
func (d *Driver) Start(budget time.Duration) {
	if budget < 0 {
		budget = 0
	}
	d.remaining = budget
	d.active = true
	d.last = d.clock.Now()
	if d.ticker == nil {
		d.ticker = d.clock.NewTicker(d.interval)
	} else {
		d.ticker.Reset(d.interval)
	}
}

// Stop halts the countdown and releases the ticker.
func (d *Driver) Stop() {
	d.active = false
	d.remaining = 0
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}

// C delivers ticks while the countdown is running. It is nil otherwise, so a
// select on it blocks.
func (d *Driver) C() <-chan time.Time {
	if d.ticker == nil {
		return nil
	}
	return d.ticker.Chan()
}

// Tick accounts for the time elapsed since the previous tick and reports
// whether the budget is exhausted.
func (d *Driver) Tick(now time.Time) bool {
	if !d.active {
		return false
	}
	from := d.last
	if now.After(d.last) {
		d.last = now
	}
	if d.suspended {
		resumeAt := d.suspendedAt.Add(d.grace)
		if from.Before(resumeAt) {
			from = resumeAt
		}
	}
	if elapsed := now.Sub(from); elapsed > 0 {
		d.remaining -= elapsed
	}
	if d.remaining <= 0 {
		d.remaining = 0
		return true
	}
	return false
}

// Suspend holds the countdown for at most the grace window.
func (d *Driver) Suspend() {
	if d.suspended {
		return
	}
	now := d.clock.Now()
	d.Tick(now)
	d.suspended = true
	d.suspendedAt = now
}

// Resume lifts a suspension. Time spent suspended within the grace window is
// not charged to the running turn.
func (d *Driver) Resume() {
	if !d.suspended {
		return
	}
	d.Tick(d.clock.Now())
	d.suspended = false
}

func (d *Driver) Remaining() time.Duration { return d.remaining }

func (d *Driver) Active() bool { return d.active }

// Suspended reports whether the countdown is currently held.
func (d *Driver) Suspended() bool {
	return d.suspended && d.clock.Now().Before(d.suspendedAt.Add(d.grace))
}
