package toxfilter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
	"github.com/kailas-cloud/toxfilter/internal/lexicon"
	"github.com/kailas-cloud/toxfilter/internal/transport/classifier"
	"github.com/kailas-cloud/toxfilter/internal/usecase/composer"
	"github.com/kailas-cloud/toxfilter/internal/usecase/escalation"
	healthuc "github.com/kailas-cloud/toxfilter/internal/usecase/health"
	"github.com/kailas-cloud/toxfilter/internal/usecase/session"
)

const defaultClassifierTimeout = 15 * time.Second

var errClosed = errors.New("toxfilter: filter closed")

// backend is what the pipeline needs from a classifier.
type backend interface {
	escalation.Classifier
	composer.TextClassifier
	healthuc.ClassifierChecker
}

// Filter is the toxfilter SDK entry point. Safe for concurrent use.
type Filter struct {
	lex      *lexicon.Lexicon
	sessions *session.Manager
	text     composer.TextClassifier
	recorder session.Recorder
	health   *healthuc.Service
	composer composer.Config
	domain   string
	obs      *observer

	mu     sync.RWMutex
	closed bool
}

// New compiles the lexicon and wires the optional classifier.
func New(opts ...Option) (*Filter, error) {
	cfg := &filterConfig{classifierTimeout: defaultClassifierTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	lex, err := buildLexicon(cfg)
	if err != nil {
		return nil, fmt.Errorf("toxfilter: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	sc := session.DefaultConfig()
	if cfg.batchSize > 0 {
		sc.Escalation.BatchSize = cfg.batchSize
	}
	if cfg.minTextLength > 0 {
		sc.MinEscalationLength = cfg.minTextLength
		sc.Escalation.MinTextLength = cfg.minTextLength
	}

	f := &Filter{
		lex:      lex,
		sessions: session.NewManager(lex, sc, zap.NewNop()),
		composer: sc.Composer,
		domain:   cfg.domain,
		obs:      obs,
	}

	if cfg.recorder != nil {
		f.recorder = recorderAdapter{r: cfg.recorder}
		f.sessions.WithRecorder(f.recorder)
	}

	// Pass a nil interface (not a typed nil pointer) when there is no classifier.
	var checker healthuc.ClassifierChecker
	if b := buildBackend(cfg); b != nil {
		f.text = b
		f.sessions.WithClassifier(b, b)
		checker = healthuc.NewMonitor(b, 5*time.Second, nil)
	}
	f.health = healthuc.New(nil, checker)
	return f, nil
}

func buildLexicon(cfg *filterConfig) (*lexicon.Lexicon, error) {
	var sources []lexicon.Source
	if !cfg.noDefaultLexicon {
		defaults, err := lexicon.DefaultSources()
		if err != nil {
			return nil, err
		}
		sources = defaults
	}
	for _, s := range cfg.lexiconSources {
		sources = append(sources, s.toInternal())
	}
	return lexicon.Compile(sources...)
}

func buildBackend(cfg *filterConfig) backend {
	switch {
	case cfg.classifier != nil:
		return classifierAdapter{c: cfg.classifier}
	case cfg.classifierURL != "":
		return classifier.New(&classifier.Config{
			BaseURL: cfg.classifierURL,
			Timeout: cfg.classifierTimeout,
		})
	default:
		return nil
	}
}

// ScanHTML annotates a document and waits for classifier replies.
// Classifier failures leave the lexicon annotations in place.
func (f *Filter) ScanHTML(ctx context.Context, html string) (res Result, err error) {
	start := time.Now()
	defer func() { f.obs.observe("scan_html", start, err, "annotations", len(res.Annotations)) }()

	if err := f.acquire(); err != nil {
		return Result{}, err
	}
	defer f.mu.RUnlock()

	sess, _, err := f.sessions.Create(ctx, html, f.domain)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = f.sessions.Close(sess.ID()) }()

	if err := sess.Flush(ctx); err != nil {
		return Result{}, err
	}
	view, err := sess.View(ctx)
	if err != nil {
		return Result{}, err
	}

	res = resultFromView(view)
	f.obs.scanned(res)
	return res, nil
}

// CheckText runs the composer check on one text: the lexicon, then the
// classifier when configured. Texts shorter than the composer minimum are
// never flagged. A classifier failure falls back to the lexicon result.
func (f *Filter) CheckText(ctx context.Context, text string) (check TextCheck, err error) {
	start := time.Now()
	defer func() {
		f.obs.observe("check_text", start, err, "severity", check.Severity)
		if err == nil {
			f.obs.checked(check)
		}
	}()

	if err := f.acquire(); err != nil {
		return TextCheck{}, err
	}
	defer f.mu.RUnlock()

	check = TextCheck{Severity: SeverityNone}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < f.composer.MinLength {
		return check, nil
	}

	matches := f.lex.FindAll(text)
	sev := lexicon.Classify(matches)
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if !seen[m.Term] {
			seen[m.Term] = true
			check.Words = append(check.Words, m.Term)
		}
	}

	if f.text != nil {
		cctx, cancel := context.WithTimeout(ctx, f.composer.Timeout)
		v, cerr := f.text.ClassifyText(cctx, truncateRunes(text, f.composer.MaxTextLength))
		cancel()
		if cerr == nil {
			pv := verdictFromInternal(v)
			check.AI = &pv
			if v.Escalate {
				aiSev := v.Severity
				if aiSev == "" || aiSev == severity.None {
					aiSev = severity.Low
				}
				sev = severity.Max(sev, aiSev)
				f.record(text, sev, v)
			}
		} else {
			f.obs.debug("classifier check dropped", "error", cerr)
		}
	}

	check.Severity = Severity(sev)
	check.Flagged = sev != severity.None
	return check, nil
}

// Status probes the classifier and reports the detection mode.
func (f *Filter) Status(ctx context.Context) Status {
	report := f.health.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return Status{
		Status: string(report.Status),
		Mode:   string(report.Mode),
		Checks: checks,
	}
}

// Close releases every session. Later calls fail with ErrClosed.
func (f *Filter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.sessions.CloseAll()
	return nil
}

// acquire takes the read lock unless the filter is closed.
func (f *Filter) acquire() error {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return errClosed
	}
	return nil
}

func (f *Filter) record(text string, sev severity.Level, v verdict.Verdict) {
	if f.recorder == nil {
		return
	}
	f.recorder.Record(event.Event{
		Timestamp: time.Now(),
		Source:    event.SourceComposer,
		Text:      event.Snippet(text),
		Severity:  sev,
		Score:     v.Score,
		Scores:    v.Scores,
		Domain:    f.domain,
	})
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// classifierAdapter exposes a public Classifier to the pipeline.
type classifierAdapter struct {
	c Classifier
}

func (a classifierAdapter) ClassifyBatch(ctx context.Context, texts []string) ([]verdict.Verdict, error) {
	vs, err := a.c.ClassifyBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]verdict.Verdict, len(vs))
	for i, v := range vs {
		out[i] = v.toInternal()
	}
	return out, nil
}

func (a classifierAdapter) ClassifyText(ctx context.Context, text string) (verdict.Verdict, error) {
	v, err := a.c.ClassifyText(ctx, text)
	if err != nil {
		return verdict.Verdict{}, err
	}
	return v.toInternal(), nil
}

// HealthCheck delegates when the classifier can report its own health.
func (a classifierAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := a.c.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// recorderAdapter converts events for a public Recorder.
type recorderAdapter struct {
	r Recorder
}

func (a recorderAdapter) Record(e event.Event) { a.r.Record(eventFromInternal(e)) }
