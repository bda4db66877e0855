// Package composer implements the per-surface warning state machine that
// reacts to live typing with an instant lexicon check and a debounced
// classifier check.
package composer

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
	"github.com/kailas-cloud/toxfilter/internal/eventloop"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
)

// State is the guard's warning state.
type State string

// Guard states.
const (
	Idle           State = "idle"
	LexiconWarning State = "lexicon_warning"
	AIWarning      State = "ai_warning"
)

// Warning texts.
const (
	LexiconLabel  = "Toxic language detected"
	LexiconDetail = "contains flagged words"
	// aiLabelThreshold is the score above which the label names the AI severity.
	aiLabelThreshold = 0.30
)

// Config tunes the guard.
type Config struct {
	Delay         time.Duration
	MinLength     int // runes, after trimming
	MaxTextLength int // runes sent to the classifier
	Timeout       time.Duration
}

// DefaultConfig returns the production guard settings.
func DefaultConfig() Config {
	return Config{
		Delay:         time.Second,
		MinLength:     20,
		MaxTextLength: 500,
		Timeout:       8 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Delay <= 0 {
		c.Delay = d.Delay
	}
	if c.MinLength < 0 {
		c.MinLength = 0
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = d.MaxTextLength
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Snapshot is the observable guard state.
type Snapshot struct {
	State          State          `json:"state"`
	LastText       string         `json:"last_text"`
	WarningVisible bool           `json:"warning_visible"`
	LastSeverity   severity.Level `json:"last_severity,omitempty"`
	Warning        domain.Warning `json:"warning"`
	CheckPending   bool           `json:"check_pending"`
}

// Guard watches one surface. All methods run on the event loop except Close.
type Guard struct {
	loop       *eventloop.Loop
	surface    Surface
	matcher    Matcher
	classifier TextClassifier
	cfg        Config
	debounce   *eventloop.Debouncer

	availability Availability
	recorder     Recorder
	domain       string
	logger       *zap.Logger

	state        State
	lastText     string
	lastSeverity severity.Level
	warning      domain.Warning
	visible      bool
	inflight     int

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a guard in the Idle state. classifier may be nil for lexicon-only operation.
func New(
	loop *eventloop.Loop, surface Surface, matcher Matcher,
	classifier TextClassifier, cfg Config, logger *zap.Logger,
) *Guard {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Guard{
		loop:       loop,
		surface:    surface,
		matcher:    matcher,
		classifier: classifier,
		cfg:        cfg,
		debounce:   eventloop.NewDebouncer(loop, cfg.Delay),
		logger:     logger,
		state:      Idle,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithAvailability skips remote checks while the classifier is down.
func (g *Guard) WithAvailability(a Availability) *Guard {
	g.availability = a
	return g
}

// WithRecorder sets the event sink.
func (g *Guard) WithRecorder(r Recorder) *Guard {
	g.recorder = r
	return g
}

// WithDomain sets the domain attached to events.
func (g *Guard) WithDomain(domain string) *Guard {
	g.domain = domain
	return g
}

// Snapshot returns the current state.
func (g *Guard) Snapshot() Snapshot {
	return Snapshot{
		State:          g.state,
		LastText:       g.lastText,
		WarningVisible: g.visible,
		LastSeverity:   g.lastSeverity,
		Warning:        g.warning,
		CheckPending:   g.debounce.Armed() || g.inflight > 0,
	}
}

// OnInput reacts to a change of the surface text.
func (g *Guard) OnInput() {
	text := g.currentText()
	g.lastText = text

	if utf8.RuneCountInString(text) < g.cfg.MinLength {
		g.debounce.Cancel()
		g.clear()
		return
	}

	g.showLexicon(text)
	g.debounce.Arm(g.check)
}

// OnBlur cancels the pending check and keeps any visible warning.
func (g *Guard) OnBlur() {
	g.debounce.Cancel()
}

// Dismiss hides the warning. New input can show it again.
func (g *Guard) Dismiss() {
	g.surface.ClearWarning()
	g.visible = false
	g.warning = domain.Warning{}
	g.transition(Idle)
}

// Close cancels the pending timer and in-flight checks. Safe from any goroutine.
func (g *Guard) Close() {
	g.cancel()
	g.loop.Post(g.debounce.Cancel)
}

// check fires after the debounce delay and re-reads the live text.
func (g *Guard) check() {
	text := g.currentText()
	if utf8.RuneCountInString(text) < g.cfg.MinLength {
		g.clear()
		return
	}
	if g.classifier == nil || (g.availability != nil && !g.availability.Available()) {
		g.showLexicon(text)
		return
	}

	payload := truncate(text, g.cfg.MaxTextLength)
	g.inflight++
	g.loop.Go(func() func() {
		ctx, cancel := context.WithTimeout(g.ctx, g.cfg.Timeout)
		defer cancel()
		v, err := g.classifier.ClassifyText(ctx, payload)
		return func() {
			g.inflight--
			g.applyVerdict(text, v, err)
		}
	})
}

// applyVerdict re-validates against the live text before rendering anything.
func (g *Guard) applyVerdict(checked string, v verdict.Verdict, err error) {
	current := g.currentText()
	if utf8.RuneCountInString(current) < g.cfg.MinLength {
		g.clear()
		return
	}
	if err != nil {
		g.logger.Debug("Composer check dropped", zap.Error(err))
		return
	}
	if current != checked {
		// Verdict is for stale text: only the lexicon result can be trusted.
		g.showLexicon(current)
		return
	}

	var w domain.Warning
	switch {
	case v.Escalate:
		w = aiWarning(v)
		g.show(AIWarning, w)
	case g.matcher.MatchString(current):
		w = lexiconWarning()
		g.show(LexiconWarning, w)
	default:
		g.clear()
		return
	}
	g.record(current, w.Severity, v)
}

// showLexicon shows the lexicon warning on a hit; otherwise the display is
// cleared since any earlier verdict no longer describes the text.
func (g *Guard) showLexicon(text string) {
	if g.matcher.MatchString(text) {
		g.show(LexiconWarning, lexiconWarning())
		return
	}
	g.clear()
}

func (g *Guard) show(s State, w domain.Warning) {
	g.surface.SetWarning(w)
	g.warning = w
	g.visible = true
	g.lastSeverity = w.Severity
	g.transition(s)
}

func (g *Guard) clear() {
	if g.visible {
		g.surface.ClearWarning()
	}
	g.visible = false
	g.warning = domain.Warning{}
	g.transition(Idle)
}

func (g *Guard) transition(to State) {
	if g.state == to {
		return
	}
	metrics.ComposerTransitionsTotal.WithLabelValues(string(g.state), string(to)).Inc()
	g.state = to
}

func (g *Guard) record(text string, sev severity.Level, v verdict.Verdict) {
	if g.recorder == nil {
		return
	}
	g.recorder.Record(event.Event{
		Timestamp: g.loop.Clock().Now(),
		Source:    event.SourceComposer,
		Text:      event.Snippet(text),
		Severity:  sev,
		Score:     v.Score,
		Scores:    v.Scores,
		Domain:    g.domain,
	})
}

func (g *Guard) currentText() string {
	return strings.TrimSpace(g.surface.Text())
}

func lexiconWarning() domain.Warning {
	return domain.Warning{Severity: severity.Medium, Label: LexiconLabel, Detail: LexiconDetail}
}

func aiWarning(v verdict.Verdict) domain.Warning {
	sev := v.Severity
	if sev == "" || sev == severity.None {
		sev = severity.Low
	}
	pct := v.Percent()

	label := LexiconLabel
	if v.Score > aiLabelThreshold {
		label = fmt.Sprintf("AI: %s severity (%d%% toxic)", sev, pct)
	}
	detail := LexiconDetail
	if pct > 0 {
		detail = fmt.Sprintf("%d%% toxicity", pct)
	}
	return domain.Warning{Severity: sev, Label: label, Detail: detail}
}

func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
