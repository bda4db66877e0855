package scan

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/kailas-cloud/toxfilter/internal/dom"
	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/lexicon"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
	"github.com/kailas-cloud/toxfilter/internal/usecase/escalation"
)

// DefaultMinEscalationLength is the shortest unit text, in runes, forwarded without a lexicon hit.
const DefaultMinEscalationLength = 20

// Result summarizes one Scan call.
type Result struct {
	Scanned     int
	Matched     int
	Escalated   int
	Skipped     int
	Annotations []*dom.Annotation
}

// Scanner annotates lexicon hits in a document and feeds the escalation queue.
// Loop-owned: Scan and the mutation callback run on the session event loop.
type Scanner struct {
	doc     *dom.Document
	matcher Matcher
	tracker *Tracker
	logger  *zap.Logger

	escalator Escalator
	recorder  Recorder
	onSurface func(dom.Surface)
	minAILen  int
	domain    string
	now       func() time.Time
}

// New creates a scanner over doc.
func New(doc *dom.Document, matcher Matcher, tracker *Tracker, logger *zap.Logger) *Scanner {
	if tracker == nil {
		tracker = NewTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		doc:      doc,
		matcher:  matcher,
		tracker:  tracker,
		logger:   logger,
		minAILen: DefaultMinEscalationLength,
		now:      time.Now,
	}
}

// WithEscalator forwards units to the classifier queue.
func (s *Scanner) WithEscalator(e Escalator) *Scanner {
	s.escalator = e
	return s
}

// WithRecorder sets the event sink.
func (s *Scanner) WithRecorder(r Recorder) *Scanner {
	s.recorder = r
	return s
}

// WithSurfaceHandler is called for each editable surface found while scanning.
func (s *Scanner) WithSurfaceHandler(fn func(dom.Surface)) *Scanner {
	s.onSurface = fn
	return s
}

// WithMinEscalationLength sets the no-hit escalation threshold.
func (s *Scanner) WithMinEscalationLength(n int) *Scanner {
	if n >= 0 {
		s.minAILen = n
	}
	return s
}

// WithDomain sets the domain attached to events.
func (s *Scanner) WithDomain(domain string) *Scanner {
	s.domain = domain
	return s
}

// WithClock overrides event timestamps.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Tracker returns the processed-unit set.
func (s *Scanner) Tracker() *Tracker { return s.tracker }

// Observe rescans whatever the document gains and forgets what it loses.
// The returned func stops observing.
func (s *Scanner) Observe() func() {
	return s.doc.Subscribe(func(m dom.Mutation) {
		for _, n := range m.Added {
			s.Scan(n)
		}
		for _, n := range m.Removed {
			s.tracker.Forget(s.doc.ReleaseUnits(n)...)
		}
	})
}

// Scan processes every unmarked unit under root in document order,
// then reports editable surfaces found under root.
func (s *Scanner) Scan(root *html.Node) Result {
	var res Result
	for _, u := range s.doc.Units(root) {
		s.scanUnit(u, &res)
	}
	if s.onSurface != nil {
		for _, sf := range s.doc.DiscoverSurfaces(root) {
			s.onSurface(sf)
		}
	}
	return res
}

func (s *Scanner) scanUnit(u dom.Unit, res *Result) {
	defer func() {
		if r := recover(); r != nil {
			metrics.UnitsScannedTotal.WithLabelValues("panic").Inc()
			s.logger.Error("Scan unit panic recovered",
				zap.Uint64("unit", uint64(u.ID)),
				zap.Any("panic", r),
			)
		}
	}()

	if !s.tracker.Mark(u.ID) {
		return
	}
	res.Scanned++

	text := u.Text()
	if strings.TrimSpace(text) == "" || !s.doc.Eligible(u) {
		res.Skipped++
		metrics.UnitsScannedTotal.WithLabelValues("skipped").Inc()
		return
	}

	matches := s.matcher.FindAll(text)
	if len(matches) == 0 {
		if s.escalator != nil && utf8.RuneCountInString(text) >= s.minAILen {
			s.escalator.Enqueue(escalation.Item{
				Text:     text,
				Fallback: &unitFallback{doc: s.doc, tracker: s.tracker, unit: u},
			})
			res.Escalated++
			metrics.UnitsScannedTotal.WithLabelValues("escalated").Inc()
			return
		}
		metrics.UnitsScannedTotal.WithLabelValues("clean").Inc()
		return
	}

	spans := make([]dom.Span, len(matches))
	for i, m := range matches {
		spans[i] = dom.Span{Start: m.Start, End: m.End(), Word: m.Term, Severity: m.Severity}
	}
	wrapped, err := s.doc.WrapSpans(u, spans)
	if err != nil {
		if errors.Is(err, domain.ErrUnitDetached) {
			metrics.UnitsScannedTotal.WithLabelValues("detached").Inc()
			return
		}
		s.logger.Warn("Annotate unit failed", zap.Uint64("unit", uint64(u.ID)), zap.Error(err))
		return
	}
	for _, f := range wrapped.Fragments {
		s.tracker.Mark(f.ID)
	}

	res.Matched++
	res.Annotations = append(res.Annotations, wrapped.Annotations...)
	metrics.UnitsScannedTotal.WithLabelValues("matched").Inc()

	for _, m := range matches {
		metrics.LexiconMatchesTotal.WithLabelValues(string(m.Severity)).Inc()
		s.record(m, text)
	}

	if s.escalator != nil {
		anns := make([]escalation.Annotation, len(wrapped.Annotations))
		for i, a := range wrapped.Annotations {
			anns[i] = a
		}
		s.escalator.Enqueue(escalation.Item{Text: text, Annotations: anns})
	}
}

func (s *Scanner) record(m lexicon.Match, text string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(event.Event{
		Timestamp: s.now(),
		Source:    event.SourceWordList,
		Word:      strings.ToLower(m.Term),
		Text:      event.Snippet(text),
		Severity:  m.Severity,
		Domain:    s.domain,
	})
}

// unitFallback wraps an unmatched unit when the classifier flags it.
type unitFallback struct {
	doc     *dom.Document
	tracker *Tracker
	unit    dom.Unit
}

func (f *unitFallback) WrapAI(l severity.Level, score float64) error {
	_, created, err := f.doc.WrapAI(f.unit, l, score)
	if err != nil {
		return err
	}
	for _, u := range created {
		f.tracker.Mark(u.ID)
	}
	return nil
}
