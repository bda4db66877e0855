package eventloop

import "time"

// Debouncer keeps at most one pending timer per logical stream.
// Arming replaces the previous timer. Loop-owned.
type Debouncer struct {
	loop  *Loop
	delay time.Duration
	timer *Timer
}

// NewDebouncer creates a debouncer with a fixed delay.
func NewDebouncer(loop *Loop, delay time.Duration) *Debouncer {
	return &Debouncer{loop: loop, delay: delay}
}

// Arm cancels the outstanding timer and schedules fn after the delay.
func (d *Debouncer) Arm(fn func()) {
	d.Cancel()
	var t *Timer
	t = d.loop.AfterFunc(d.delay, func() {
		if d.timer == t {
			d.timer = nil
		}
		fn()
	})
	d.timer = t
}

// Cancel stops the outstanding timer, if any.
func (d *Debouncer) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Armed reports whether a timer is outstanding.
func (d *Debouncer) Armed() bool { return d.timer != nil }
