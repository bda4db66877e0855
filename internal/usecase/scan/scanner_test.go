package scan

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/toxfilter/internal/dom"
	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/lexicon"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
	"github.com/kailas-cloud/toxfilter/internal/usecase/escalation"
)

// --- Mocks ---

type mockEscalator struct {
	items []escalation.Item
}

func (m *mockEscalator) Enqueue(item escalation.Item) { m.items = append(m.items, item) }

type mockRecorder struct {
	events []event.Event
}

func (m *mockRecorder) Record(e event.Event) { m.events = append(m.events, e) }

// failingMatcher panics on texts containing trigger and delegates otherwise.
type failingMatcher struct {
	inner   Matcher
	trigger string
}

func (m *failingMatcher) FindAll(text string) []lexicon.Match {
	if strings.Contains(text, m.trigger) {
		panic("matcher exploded")
	}
	return m.inner.FindAll(text)
}

// --- Helpers ---

func testLexicon(t *testing.T) *lexicon.Lexicon {
	t.Helper()
	lex, err := lexicon.Compile(lexicon.Source{
		Language: "test",
		High:     []string{"how to kill"},
		Medium:   []string{"idiot"},
		Low:      []string{"kill", "cat"},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return lex
}

func newScanner(t *testing.T, page string) (*Scanner, *dom.Document, *mockEscalator, *mockRecorder) {
	t.Helper()
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	esc := &mockEscalator{}
	rec := &mockRecorder{}
	s := New(doc, testLexicon(t), nil, nil).
		WithEscalator(esc).
		WithRecorder(rec).
		WithDomain("forum.test").
		WithClock(func() time.Time { return time.Unix(100, 0) })
	return s, doc, esc, rec
}

func render(t *testing.T, doc *dom.Document) string {
	t.Helper()
	out, err := doc.HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	return out
}

// --- Tests ---

func TestScan_AnnotatesMatches(t *testing.T) {
	s, doc, esc, rec := newScanner(t, `<p>You idiot, learn how to kill time.</p>`)

	res := s.Scan(doc.Body())
	if res.Matched != 1 || len(res.Annotations) != 2 {
		t.Fatalf("result = %+v", res)
	}

	out := render(t, doc)
	if !strings.Contains(out, `class="toxic-word-blur severity-medium" data-word="idiot"`) {
		t.Errorf("idiot not annotated:\n%s", out)
	}
	if !strings.Contains(out, `class="toxic-word-blur severity-high" data-word="how to kill"`) {
		t.Errorf("longest term not annotated:\n%s", out)
	}
	if strings.Contains(out, `data-word="kill"`) {
		t.Errorf("shorter term fragmented the match:\n%s", out)
	}

	if len(rec.events) != 2 {
		t.Fatalf("got %d events, want 2", len(rec.events))
	}
	for _, e := range rec.events {
		if e.Source != event.SourceWordList || e.Domain != "forum.test" {
			t.Errorf("event = %+v", e)
		}
	}
	if rec.events[1].Word != "how to kill" || rec.events[1].Severity != severity.High {
		t.Errorf("second event = %+v", rec.events[1])
	}

	if len(esc.items) != 1 || len(esc.items[0].Annotations) != 2 || esc.items[0].Fallback != nil {
		t.Fatalf("escalation items = %+v", esc.items)
	}
	if esc.items[0].Text != "You idiot, learn how to kill time." {
		t.Errorf("escalated text = %q", esc.items[0].Text)
	}
}

func TestScan_Idempotent(t *testing.T) {
	s, doc, esc, rec := newScanner(t, `<div><p>what an idiot</p><p>fine text</p></div>`)

	s.Scan(doc.Body())
	first := render(t, doc)
	events := len(rec.events)
	items := len(esc.items)

	res := s.Scan(doc.Body())
	if res.Scanned != 0 {
		t.Errorf("second scan processed %d units", res.Scanned)
	}
	if render(t, doc) != first {
		t.Error("second scan changed the document")
	}
	if len(rec.events) != events || len(esc.items) != items {
		t.Error("second scan emitted events or escalations")
	}
	if strings.Count(first, "toxic-word-blur") != 1 {
		t.Errorf("expected exactly one annotation:\n%s", first)
	}
}

func TestScan_BoundaryPreventsSubstring(t *testing.T) {
	s, doc, _, rec := newScanner(t, `<p>concatenate</p>`)

	res := s.Scan(doc.Body())
	if res.Matched != 0 || len(rec.events) != 0 {
		t.Errorf("substring matched: %+v", res)
	}
}

func TestScan_SkipsNonContent(t *testing.T) {
	s, doc, esc, rec := newScanner(t, `<body>
<script>var idiot = 1;</script>
<style>.idiot{}</style>
<noscript>idiot</noscript>
<textarea>idiot</textarea>
<span class="ai-blur-wrap severity-low"><span class="ai-blurred">idiot</span></span>
<p>   </p>
</body>`)

	s.Scan(doc.Body())
	if len(rec.events) != 0 || len(esc.items) != 0 {
		t.Errorf("non-content scanned: events=%d items=%d", len(rec.events), len(esc.items))
	}
}

func TestScan_EscalatesLongUnmatchedText(t *testing.T) {
	s, doc, esc, _ := newScanner(t, `<p>short one</p><p>this sentence is long enough to escalate</p>`)

	res := s.Scan(doc.Body())
	if res.Escalated != 1 || len(esc.items) != 1 {
		t.Fatalf("result = %+v items = %d", res, len(esc.items))
	}
	item := esc.items[0]
	if item.Fallback == nil || len(item.Annotations) != 0 {
		t.Fatalf("item = %+v, want fallback only", item)
	}

	if err := item.Fallback.WrapAI(severity.High, 0.81); err != nil {
		t.Fatalf("WrapAI: %v", err)
	}
	out := render(t, doc)
	if !strings.Contains(out, `class="ai-blur-wrap severity-high"`) || !strings.Contains(out, "AI 81%") {
		t.Errorf("AI annotation missing:\n%s", out)
	}

	// Units created for the AI wrapper are already processed.
	if res := s.Scan(doc.Body()); res.Scanned != 0 {
		t.Errorf("rescan processed %d units", res.Scanned)
	}
}

func TestScan_MinEscalationLength(t *testing.T) {
	s, doc, esc, _ := newScanner(t, `<p>twelve chars</p>`)
	s.WithMinEscalationLength(5)

	s.Scan(doc.Body())
	if len(esc.items) != 1 {
		t.Errorf("got %d items, want 1", len(esc.items))
	}
}

func TestObserve_ScansAppendedContent(t *testing.T) {
	s, doc, _, rec := newScanner(t, `<div id="feed"><p>hello</p></div>`)
	s.Scan(doc.Body())
	stop := s.Observe()
	defer stop()

	if _, err := doc.Append("feed", `<p>new comment: idiot</p>`); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Word != "idiot" {
		t.Fatalf("events = %+v", rec.events)
	}

	if _, err := doc.Append("feed", `plain text node with cat`); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(rec.events) != 2 || rec.events[1].Word != "cat" {
		t.Fatalf("text node not scanned: %+v", rec.events)
	}
}

func TestObserve_RemovalForgetsUnitsAndDetachesFallback(t *testing.T) {
	s, doc, esc, _ := newScanner(t, `<div id="post"><p>a reasonably long sentence without any terms</p></div>`)
	stop := s.Observe()
	defer stop()

	s.Scan(doc.Body())
	marked := s.Tracker().Len()
	if len(esc.items) != 1 {
		t.Fatalf("got %d items", len(esc.items))
	}

	if err := doc.Remove("post"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Tracker().Len() >= marked {
		t.Errorf("tracker not pruned: %d -> %d", marked, s.Tracker().Len())
	}

	err := esc.items[0].Fallback.WrapAI(severity.High, 0.9)
	if !errors.Is(err, domain.ErrUnitDetached) {
		t.Errorf("err = %v, want ErrUnitDetached", err)
	}
}

func TestScan_ReportsSurfaces(t *testing.T) {
	s, doc, _, _ := newScanner(t, `<textarea></textarea><div contenteditable="true"></div>`)
	var got []dom.Surface
	s.WithSurfaceHandler(func(sf dom.Surface) { got = append(got, sf) })

	s.Scan(doc.Body())
	s.Scan(doc.Body())
	if len(got) != 2 {
		t.Errorf("got %d surfaces, want 2", len(got))
	}
}

func TestScan_PanicInOneUnitSparesSiblings(t *testing.T) {
	doc, err := dom.ParseString(`<p>boom idiot</p><p>what an idiot</p>`)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	rec := &mockRecorder{}
	s := New(doc, &failingMatcher{inner: testLexicon(t), trigger: "boom"}, nil, nil).WithRecorder(rec)

	panics := metrics.UnitsScannedTotal.WithLabelValues("panic")
	before := testutil.ToFloat64(panics)

	res := s.Scan(doc.Body())
	if res.Scanned != 2 || res.Matched != 1 || len(res.Annotations) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := testutil.ToFloat64(panics); got != before+1 {
		t.Errorf("panic outcome = %f, want %f", got, before+1)
	}

	out := render(t, doc)
	if !strings.Contains(out, "boom idiot") {
		t.Errorf("failed unit must be left as is:\n%s", out)
	}
	if !strings.Contains(out, `data-word="idiot"`) {
		t.Errorf("sibling not annotated:\n%s", out)
	}
	if len(rec.events) != 1 || rec.events[0].Word != "idiot" {
		t.Errorf("events = %+v", rec.events)
	}
}
