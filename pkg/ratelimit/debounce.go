package ratelimit

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into one trailing invocation of
// fn: each Trigger re-arms the timer, and fn runs once the triggers go
// quiet for the configured delay. Flush runs a pending invocation
// immediately; Stop cancels it for good. The callback runs on a timer
// goroutine, never under the debouncer's lock.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

// NewDebouncer creates a debouncer invoking fn after delay of quiet. A
// non-positive delay disables coalescing: every Trigger invokes fn
// synchronously.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger requests an invocation. While one is pending the timer is
// pushed back instead of queueing another. Triggers after Stop are
// dropped.
func (d *Debouncer) Trigger() {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.delay <= 0 {
		d.mu.Unlock()
		d.fn()
		return
	}

	d.pending = true
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
	} else {
		d.timer.Reset(d.delay)
	}
	d.mu.Unlock()
}

// SetDelay replaces the quiet window for subsequent triggers. A timer
// already armed keeps its current deadline.
func (d *Debouncer) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	d.fn()
}

// Flush runs the pending invocation right away, if there is one, and
// disarms the timer. It returns true when fn was invoked.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	wasPending := d.pending && !d.stopped
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	if wasPending {
		d.fn()
	}
	return wasPending
}

// Stop cancels any pending invocation and rejects future triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Pending reports whether an invocation is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
