package query

import (
	"sync"
	"time"
)

// Stopper is the part of *time.Timer the debouncer needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped by
// RealAfterFunc.
type AfterFunc func(d time.Duration, f func()) Stopper

// RealAfterFunc schedules f on a runtime timer.
func RealAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Debouncer runs the most recently triggered callback once the trigger has
// been quiet for the configured delay. Each Trigger cancels the pending one.
type Debouncer struct {
	delay time.Duration
	after AfterFunc

	mu    sync.Mutex
	timer Stopper
	seq   uint64
}

// NewDebouncer creates a Debouncer. A nil after uses RealAfterFunc.
func NewDebouncer(delay time.Duration, after AfterFunc) *Debouncer {
	if after == nil {
		after = RealAfterFunc
	}
	return &Debouncer{delay: delay, after: after}
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger restarts the quiet period with f as the pending callback.
func (d *Debouncer) Trigger(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.after(d.delay, func() {
		// A timer that already fired cannot be stopped; the sequence check
		// drops callbacks superseded in the meantime.
		d.mu.Lock()
		current := d.seq == seq
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			f()
		}
	})
}

// Pending reports whether a callback is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels the pending callback, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
