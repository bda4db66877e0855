package session

import (
	"context"

	"github.com/kailas-cloud/toxfilter/internal/eventloop"
	"github.com/kailas-cloud/toxfilter/internal/usecase/composer"
)

// Composer is a standalone guard bound to its own loop.
type Composer struct {
	loop  *eventloop.Loop
	guard *composer.Guard
}

// Do runs fn on the guard's loop, for surface updates that must not race the guard.
func (c *Composer) Do(ctx context.Context, fn func()) error {
	return c.loop.Do(ctx, fn)
}

// Input runs the input handler after set has updated the surface text.
func (c *Composer) Input(ctx context.Context, set func()) (composer.Snapshot, error) {
	return c.call(ctx, func() {
		if set != nil {
			set()
		}
		c.guard.OnInput()
	})
}

// Blur cancels the pending remote check.
func (c *Composer) Blur(ctx context.Context) (composer.Snapshot, error) {
	return c.call(ctx, c.guard.OnBlur)
}

// Dismiss hides the warning.
func (c *Composer) Dismiss(ctx context.Context) (composer.Snapshot, error) {
	return c.call(ctx, c.guard.Dismiss)
}

// Settle waits for pending guard work.
func (c *Composer) Settle() { c.loop.Settle() }

// Close stops the guard and its loop.
func (c *Composer) Close() {
	c.guard.Close()
	c.loop.Close()
}

func (c *Composer) call(ctx context.Context, fn func()) (composer.Snapshot, error) {
	var snap composer.Snapshot
	err := c.loop.Do(ctx, func() {
		fn()
		snap = c.guard.Snapshot()
	})
	return snap, err
}
