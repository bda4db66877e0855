package escalation

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
	"github.com/kailas-cloud/toxfilter/internal/eventloop"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
)

// Config tunes batching.
type Config struct {
	BatchSize     int
	Debounce      time.Duration
	MinTextLength int // runes
	Timeout       time.Duration
}

// DefaultConfig returns the production batching settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     12,
		Debounce:      900 * time.Millisecond,
		MinTextLength: 20,
		Timeout:       15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.MinTextLength < 0 {
		c.MinTextLength = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Queue debounces and batches texts for the remote classifier and applies
// verdicts positionally. All methods except Close run on the event loop.
type Queue struct {
	loop       *eventloop.Loop
	classifier Classifier
	cfg        Config
	debounce   *eventloop.Debouncer

	items    []Item
	inflight int

	availability Availability
	recorder     Recorder
	domain       string
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a queue bound to loop.
func New(loop *eventloop.Loop, classifier Classifier, cfg Config, logger *zap.Logger) *Queue {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		loop:       loop,
		classifier: classifier,
		cfg:        cfg,
		debounce:   eventloop.NewDebouncer(loop, cfg.Debounce),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithAvailability skips remote calls while the classifier is down.
func (q *Queue) WithAvailability(a Availability) *Queue {
	q.availability = a
	return q
}

// WithRecorder sets the event sink.
func (q *Queue) WithRecorder(r Recorder) *Queue {
	q.recorder = r
	return q
}

// WithDomain sets the domain attached to events.
func (q *Queue) WithDomain(domain string) *Queue {
	q.domain = domain
	return q
}

// Config returns the effective settings.
func (q *Queue) Config() Config { return q.cfg }

// Enqueue adds an item. Texts shorter than MinTextLength are dropped.
// A full batch flushes at once; otherwise the debounce timer is re-armed.
func (q *Queue) Enqueue(item Item) {
	if utf8.RuneCountInString(item.Text) < q.cfg.MinTextLength {
		return
	}
	q.items = append(q.items, item)
	if len(q.items) >= q.cfg.BatchSize {
		q.debounce.Cancel()
		q.Flush()
		return
	}
	q.debounce.Arm(q.Flush)
}

// Pending returns the number of queued items.
func (q *Queue) Pending() int { return len(q.items) }

// InFlight returns the number of batches awaiting a reply.
func (q *Queue) InFlight() int { return q.inflight }

// Flush sends up to BatchSize items in one request.
func (q *Queue) Flush() {
	if len(q.items) == 0 {
		return
	}
	n := min(len(q.items), q.cfg.BatchSize)
	batch := make([]Item, n)
	copy(batch, q.items[:n])
	q.items = append(q.items[:0], q.items[n:]...)
	q.scheduleRest()

	metrics.EscalationBatchSize.Observe(float64(n))
	if q.availability != nil && !q.availability.Available() {
		metrics.EscalationBatchesTotal.WithLabelValues("skipped").Inc()
		q.logger.Debug("Classifier unavailable, batch dropped", zap.Int("items", n))
		return
	}

	texts := make([]string, n)
	for i, it := range batch {
		texts[i] = it.Text
	}

	q.inflight++
	q.loop.Go(func() func() {
		ctx, cancel := context.WithTimeout(q.ctx, q.cfg.Timeout)
		defer cancel()
		verdicts, err := q.classifier.ClassifyBatch(ctx, texts)
		return func() {
			q.inflight--
			q.apply(batch, verdicts, err)
		}
	})
}

// Close cancels in-flight requests and the pending timer. Safe from any goroutine.
func (q *Queue) Close() {
	q.cancel()
	q.loop.Post(q.debounce.Cancel)
}

func (q *Queue) scheduleRest() {
	switch {
	case len(q.items) >= q.cfg.BatchSize:
		q.loop.Post(q.Flush)
	case len(q.items) > 0:
		q.debounce.Arm(q.Flush)
	}
}

func (q *Queue) apply(batch []Item, verdicts []verdict.Verdict, err error) {
	if err != nil {
		metrics.EscalationBatchesTotal.WithLabelValues("failed").Inc()
		q.logger.Debug("Escalation batch dropped", zap.Int("items", len(batch)), zap.Error(err))
		return
	}
	if len(verdicts) != len(batch) {
		metrics.EscalationBatchesTotal.WithLabelValues("malformed").Inc()
		q.logger.Warn("Escalation batch dropped: result count mismatch",
			zap.Int("items", len(batch)),
			zap.Int("results", len(verdicts)),
		)
		return
	}
	metrics.EscalationBatchesTotal.WithLabelValues("ok").Inc()

	for i, v := range verdicts {
		item := batch[i]
		if !v.Escalate {
			metrics.EscalationVerdictsTotal.WithLabelValues("ignored").Inc()
			continue
		}

		if len(item.Annotations) > 0 {
			for _, a := range item.Annotations {
				a.SetSeverity(severity.Max(a.Severity(), v.Severity))
			}
			metrics.EscalationVerdictsTotal.WithLabelValues("upgrade").Inc()
			q.record(event.SourceAIUpgrade, item.Text, v)
			continue
		}

		if item.Fallback == nil {
			continue
		}
		if err := item.Fallback.WrapAI(v.Severity, v.Score); err != nil {
			metrics.EscalationVerdictsTotal.WithLabelValues("detached").Inc()
			q.logger.Debug("AI-only annotation skipped", zap.Error(err))
			continue
		}
		metrics.EscalationVerdictsTotal.WithLabelValues("ai_only").Inc()
		q.record(event.SourceAIOnly, item.Text, v)
	}
}

func (q *Queue) record(src event.Source, text string, v verdict.Verdict) {
	if q.recorder == nil {
		return
	}
	q.recorder.Record(event.Event{
		Timestamp: q.loop.Clock().Now(),
		Source:    src,
		Text:      event.Snippet(text),
		Severity:  v.Severity,
		Score:     v.Score,
		Scores:    v.Scores,
		Domain:    q.domain,
	})
}
