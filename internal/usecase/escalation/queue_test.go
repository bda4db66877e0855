package escalation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
	"github.com/kailas-cloud/toxfilter/internal/eventloop"
)

// --- Mocks ---

type mockClassifier struct {
	mu       sync.Mutex
	calls    [][]string
	verdicts []verdict.Verdict
	err      error
}

func (m *mockClassifier) ClassifyBatch(_ context.Context, texts []string) ([]verdict.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	if m.err != nil {
		return nil, m.err
	}
	if m.verdicts != nil {
		return m.verdicts, nil
	}
	out := make([]verdict.Verdict, len(texts))
	for i := range out {
		out[i] = verdict.Verdict{Severity: severity.None}
	}
	return out, nil
}

func (m *mockClassifier) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockAnnotation struct {
	sev severity.Level
}

func (m *mockAnnotation) Severity() severity.Level { return m.sev }
func (m *mockAnnotation) SetSeverity(l severity.Level) bool {
	m.sev = l
	return true
}

type mockFallback struct {
	wrapped bool
	sev     severity.Level
	score   float64
	err     error
}

func (m *mockFallback) WrapAI(l severity.Level, score float64) error {
	if m.err != nil {
		return m.err
	}
	m.wrapped = true
	m.sev = l
	m.score = score
	return nil
}

type mockRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (m *mockRecorder) Record(e event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockRecorder) Events() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.events...)
}

type mockAvailability struct{ up bool }

func (m *mockAvailability) Available() bool { return m.up }

// --- Helpers ---

type fixture struct {
	loop  *eventloop.Loop
	clock *eventloop.ManualClock
	queue *Queue
	cls   *mockClassifier
	rec   *mockRecorder
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := eventloop.NewManualClock(time.Unix(1700000000, 0))
	loop := eventloop.New(clock, nil)
	t.Cleanup(loop.Close)

	cls := &mockClassifier{}
	rec := &mockRecorder{}
	q := New(loop, cls, cfg, nil).WithRecorder(rec).WithDomain("example.org")
	return &fixture{loop: loop, clock: clock, queue: q, cls: cls, rec: rec}
}

func (f *fixture) do(t *testing.T, fn func()) {
	t.Helper()
	if err := f.loop.Do(context.Background(), fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func longText(prefix string) string {
	return prefix + strings.Repeat(" padding", 3)
}

// --- Tests ---

func TestEnqueue_DropsShortText(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.do(t, func() { f.queue.Enqueue(Item{Text: "too short"}) })
	f.clock.Advance(time.Second)
	f.loop.Settle()

	if got := len(f.cls.Calls()); got != 0 {
		t.Errorf("classifier called %d times, want 0", got)
	}
}

func TestEnqueue_DebouncesIntoOneBatch(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.do(t, func() { f.queue.Enqueue(Item{Text: longText("first")}) })
	f.clock.Advance(500 * time.Millisecond)
	f.do(t, func() { f.queue.Enqueue(Item{Text: longText("second")}) })
	f.clock.Advance(500 * time.Millisecond)
	f.loop.Settle()

	if got := len(f.cls.Calls()); got != 0 {
		t.Fatalf("flushed before debounce elapsed: %d calls", got)
	}

	f.clock.Advance(400 * time.Millisecond)
	f.loop.Settle()

	calls := f.cls.Calls()
	if len(calls) != 1 || len(calls[0]) != 2 {
		t.Fatalf("calls = %v, want one batch of 2", calls)
	}
	if calls[0][0] != longText("first") || calls[0][1] != longText("second") {
		t.Errorf("batch order = %v", calls[0])
	}
}

func TestEnqueue_FullBatchFlushesImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 3
	f := newFixture(t, cfg)

	f.do(t, func() {
		for i := range 4 {
			f.queue.Enqueue(Item{Text: longText(string(rune('a' + i)))})
		}
	})
	f.loop.Settle()

	calls := f.cls.Calls()
	if len(calls) != 1 || len(calls[0]) != 3 {
		t.Fatalf("calls = %v, want one batch of 3", calls)
	}

	var pending int
	f.do(t, func() { pending = f.queue.Pending() })
	if pending != 1 {
		t.Fatalf("pending = %d, want 1", pending)
	}

	f.clock.Advance(cfg.Debounce)
	f.loop.Settle()
	if calls := f.cls.Calls(); len(calls) != 2 || len(calls[1]) != 1 {
		t.Errorf("leftover item not flushed: %v", calls)
	}
}

func TestFlush_AppliesPositionally(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cls.verdicts = []verdict.Verdict{
		{Escalate: false, Severity: severity.None},
		{Escalate: true, Severity: severity.High, Score: 0.9},
		{Escalate: true, Severity: severity.Low, Score: 0.35},
	}

	first := &mockAnnotation{sev: severity.Low}
	second := &mockAnnotation{sev: severity.Low}
	third := &mockFallback{}

	f.do(t, func() {
		f.queue.Enqueue(Item{Text: longText("one"), Annotations: []Annotation{first}})
		f.queue.Enqueue(Item{Text: longText("two"), Annotations: []Annotation{second}})
		f.queue.Enqueue(Item{Text: longText("three"), Fallback: third})
		f.queue.Flush()
	})
	f.loop.Settle()

	if first.sev != severity.Low {
		t.Errorf("item 1 severity = %q, want unchanged low", first.sev)
	}
	if second.sev != severity.High {
		t.Errorf("item 2 severity = %q, want high", second.sev)
	}
	if !third.wrapped || third.sev != severity.Low || third.score != 0.35 {
		t.Errorf("item 3 fallback = %+v, want wrapped low", third)
	}

	events := f.rec.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Source != event.SourceAIUpgrade || events[0].Severity != severity.High {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Source != event.SourceAIOnly || events[1].Domain != "example.org" {
		t.Errorf("event 1 = %+v", events[1])
	}
}

func TestFlush_UpgradeIsMonotonic(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cls.verdicts = []verdict.Verdict{{Escalate: true, Severity: severity.Low, Score: 0.31}}

	ann := &mockAnnotation{sev: severity.High}
	f.do(t, func() {
		f.queue.Enqueue(Item{Text: longText("x"), Annotations: []Annotation{ann}})
		f.queue.Flush()
	})
	f.loop.Settle()

	if ann.sev != severity.High {
		t.Errorf("severity downgraded to %q", ann.sev)
	}
}

func TestFlush_FailureDropsBatch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cls.err = errors.New("connection refused")

	ann := &mockAnnotation{sev: severity.Medium}
	fb := &mockFallback{}
	f.do(t, func() {
		f.queue.Enqueue(Item{Text: longText("a"), Annotations: []Annotation{ann}})
		f.queue.Enqueue(Item{Text: longText("b"), Fallback: fb})
		f.queue.Flush()
	})
	f.loop.Settle()

	if ann.sev != severity.Medium || fb.wrapped {
		t.Error("failed batch changed annotations")
	}
	if len(f.rec.Events()) != 0 {
		t.Error("failed batch recorded events")
	}

	// Dropped, not retried.
	f.clock.Advance(time.Minute)
	f.loop.Settle()
	if got := len(f.cls.Calls()); got != 1 {
		t.Errorf("classifier called %d times, want 1", got)
	}
}

func TestFlush_ResultCountMismatchDropsBatch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cls.verdicts = []verdict.Verdict{{Escalate: true, Severity: severity.High}}

	a := &mockAnnotation{sev: severity.Low}
	b := &mockAnnotation{sev: severity.Low}
	f.do(t, func() {
		f.queue.Enqueue(Item{Text: longText("a"), Annotations: []Annotation{a}})
		f.queue.Enqueue(Item{Text: longText("b"), Annotations: []Annotation{b}})
		f.queue.Flush()
	})
	f.loop.Settle()

	if a.sev != severity.Low || b.sev != severity.Low {
		t.Error("malformed response was applied")
	}
}

func TestFlush_DetachedFallbackIsNoop(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cls.verdicts = []verdict.Verdict{{Escalate: true, Severity: severity.High}}

	fb := &mockFallback{err: errors.New("detached")}
	f.do(t, func() {
		f.queue.Enqueue(Item{Text: longText("gone"), Fallback: fb})
		f.queue.Flush()
	})
	f.loop.Settle()

	if len(f.rec.Events()) != 0 {
		t.Error("event recorded for detached unit")
	}
}

func TestFlush_SkipsWhenUnavailable(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.queue.WithAvailability(&mockAvailability{up: false})

	f.do(t, func() {
		f.queue.Enqueue(Item{Text: longText("offline")})
		f.queue.Flush()
	})
	f.loop.Settle()

	if got := len(f.cls.Calls()); got != 0 {
		t.Errorf("classifier called %d times while unavailable", got)
	}
}

func TestClose_CancelsPendingTimer(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.do(t, func() { f.queue.Enqueue(Item{Text: longText("late")}) })
	f.queue.Close()
	f.loop.Settle()
	f.clock.Advance(time.Second)
	f.loop.Settle()

	if got := len(f.cls.Calls()); got != 0 {
		t.Errorf("classifier called %d times after Close", got)
	}
}
