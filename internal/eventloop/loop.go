// Package eventloop runs pipeline work on a single goroutine.
// Tasks, timer callbacks and remote call completions are serialized,
// so state owned by the loop needs no locking.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned when posting to a closed loop.
var ErrClosed = errors.New("event loop closed")

// Loop is a FIFO task runner bound to one goroutine.
type Loop struct {
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	pending int // queued tasks, the running task, and in-flight Go work
	closed  bool
	done    chan struct{}
}

// New starts a loop.
func New(clock Clock, logger *zap.Logger) *Loop {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		clock:  clock,
		logger: logger,
		done:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Clock returns the loop's clock.
func (l *Loop) Clock() Clock { return l.clock }

// Post queues fn. Returns false when the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.pending++
	l.cond.Broadcast()
	return true
}

// Do runs fn on the loop and waits for it. Never call from a loop task.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ch := make(chan struct{})
	if !l.Post(func() {
		defer close(ch)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event loop: %w", ctx.Err())
	}
}

// Go runs work off the loop. A non-nil closure returned by work is posted back.
// Settle waits for work started here.
func (l *Loop) Go(work func() func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.pending++
	l.mu.Unlock()

	go func() {
		defer l.finish()
		var apply func()
		func() {
			defer l.recoverTask("async")
			apply = work()
		}()
		if apply != nil {
			l.Post(apply)
		}
	}()
}

// AfterFunc schedules fn on the loop after d. Call from the loop.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.stopper = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

// Settle blocks until no task is queued or running and no Go work is in flight.
// Never call from a loop task.
func (l *Loop) Settle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.pending > 0 {
		l.cond.Wait()
	}
}

// Close drains queued tasks and stops the loop. Idempotent.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.exec(fn)
		l.finish()
	}
}

func (l *Loop) exec(fn func()) {
	defer l.recoverTask("task")
	fn()
}

func (l *Loop) recoverTask(kind string) {
	if r := recover(); r != nil {
		l.logger.Error("event loop panic recovered",
			zap.String("kind", kind),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}

func (l *Loop) finish() {
	l.mu.Lock()
	l.pending--
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Timer is a cancellable loop callback.
type Timer struct {
	stopper Stopper
	stopped bool // loop-owned
}

// Stop cancels the timer. Once Stop returns on the loop, the callback never runs.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.stopped = true
	t.stopper.Stop()
}
