package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLoop(t *testing.T) (*Loop, *ManualClock) {
	t.Helper()
	clock := NewManualClock(time.Unix(0, 0))
	l := New(clock, nil)
	t.Cleanup(l.Close)
	return l, clock
}

func TestPost_FIFO(t *testing.T) {
	l, _ := newTestLoop(t)

	var got []int
	for i := range 5 {
		l.Post(func() { got = append(got, i) })
	}
	l.Settle()

	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want 0..4", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d tasks, want 5", len(got))
	}
}

func TestDo_RecoversPanic(t *testing.T) {
	l, _ := newTestLoop(t)

	if err := l.Do(context.Background(), func() { panic("boom") }); err != nil {
		t.Fatalf("Do: %v", err)
	}

	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Error("loop stopped after panic")
	}
}

func TestDo_Closed(t *testing.T) {
	l := New(nil, nil)
	l.Close()
	l.Close()

	err := l.Do(context.Background(), func() {})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if l.Post(func() {}) {
		t.Error("Post on closed loop returned true")
	}
}

func TestGo_AppliesOnLoop(t *testing.T) {
	l, _ := newTestLoop(t)

	release := make(chan struct{})
	var applied atomic.Bool
	l.Post(func() {
		l.Go(func() func() {
			<-release
			return func() { applied.Store(true) }
		})
	})

	time.AfterFunc(10*time.Millisecond, func() { close(release) })
	l.Settle()

	if !applied.Load() {
		t.Error("Settle returned before async work was applied")
	}
}

func TestGo_RecoversPanic(t *testing.T) {
	l, _ := newTestLoop(t)
	l.Go(func() func() { panic("async boom") })
	l.Settle()

	ran := false
	_ = l.Do(context.Background(), func() { ran = true })
	if !ran {
		t.Error("loop unusable after async panic")
	}
}

func TestAfterFunc_StopPreventsFire(t *testing.T) {
	l, clock := newTestLoop(t)

	fired := 0
	var timer *Timer
	_ = l.Do(context.Background(), func() {
		timer = l.AfterFunc(time.Second, func() { fired++ })
	})

	clock.Advance(500 * time.Millisecond)
	l.Settle()
	if fired != 0 {
		t.Fatalf("fired early")
	}

	_ = l.Do(context.Background(), timer.Stop)
	clock.Advance(time.Second)
	l.Settle()
	if fired != 0 {
		t.Errorf("stopped timer fired %d times", fired)
	}
}

func TestAfterFunc_StopAfterExpiryBeforeRun(t *testing.T) {
	l, clock := newTestLoop(t)

	fired := false
	block := make(chan struct{})
	var timer *Timer
	_ = l.Do(context.Background(), func() {
		timer = l.AfterFunc(time.Second, func() { fired = true })
	})

	// The timer expires while a task that stops it is running,
	// so its callback is already queued when Stop runs.
	started := make(chan struct{})
	l.Post(func() {
		close(started)
		<-block
		timer.Stop()
	})
	<-started
	clock.Advance(time.Second)
	close(block)
	l.Settle()

	if fired {
		t.Error("superseded timer fired")
	}
}

func TestDebouncer(t *testing.T) {
	l, clock := newTestLoop(t)

	var calls []string
	var d *Debouncer
	_ = l.Do(context.Background(), func() {
		d = NewDebouncer(l, 900*time.Millisecond)
		d.Arm(func() { calls = append(calls, "first") })
	})

	clock.Advance(600 * time.Millisecond)
	_ = l.Do(context.Background(), func() {
		d.Arm(func() { calls = append(calls, "second") })
	})

	clock.Advance(600 * time.Millisecond)
	l.Settle()
	if len(calls) != 0 {
		t.Fatalf("calls = %v, want none yet", calls)
	}

	clock.Advance(300 * time.Millisecond)
	l.Settle()
	if len(calls) != 1 || calls[0] != "second" {
		t.Fatalf("calls = %v, want [second]", calls)
	}

	var armed bool
	_ = l.Do(context.Background(), func() { armed = d.Armed() })
	if armed {
		t.Error("debouncer still armed after firing")
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	l, clock := newTestLoop(t)

	fired := false
	_ = l.Do(context.Background(), func() {
		d := NewDebouncer(l, time.Second)
		d.Arm(func() { fired = true })
		d.Cancel()
	})
	clock.Advance(2 * time.Second)
	l.Settle()

	if fired {
		t.Error("cancelled debouncer fired")
	}
	if clock.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", clock.Pending())
	}
}
