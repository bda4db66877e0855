// Package session runs scanning sessions: one document, one event loop,
// a scanner, an escalation queue and a composer guard per editable surface.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/dom"
	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/eventloop"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
	"github.com/kailas-cloud/toxfilter/internal/usecase/composer"
	"github.com/kailas-cloud/toxfilter/internal/usecase/escalation"
	"github.com/kailas-cloud/toxfilter/internal/usecase/scan"
)

// DefaultMaxSessions caps concurrently open sessions.
const DefaultMaxSessions = 1000

// Config tunes sessions.
type Config struct {
	MaxSessions         int
	MinEscalationLength int
	Escalation          escalation.Config
	Composer            composer.Config
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxSessions:         DefaultMaxSessions,
		MinEscalationLength: scan.DefaultMinEscalationLength,
		Escalation:          escalation.DefaultConfig(),
		Composer:            composer.DefaultConfig(),
	}
}

// Manager creates, finds and closes sessions.
type Manager struct {
	matcher Matcher
	cfg     Config
	logger  *zap.Logger

	batch        escalation.Classifier
	text         composer.TextClassifier
	availability Availability
	recorder     Recorder
	clock        eventloop.Clock

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager in lexicon-only mode.
func NewManager(matcher Matcher, cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		matcher:  matcher,
		cfg:      cfg,
		logger:   logger,
		clock:    eventloop.SystemClock{},
		sessions: make(map[string]*Session),
	}
}

// WithClassifier enables remote checks. Either argument may be nil.
func (m *Manager) WithClassifier(batch escalation.Classifier, text composer.TextClassifier) *Manager {
	m.batch = batch
	m.text = text
	return m
}

// WithAvailability skips remote calls while the classifier is down.
func (m *Manager) WithAvailability(a Availability) *Manager {
	m.availability = a
	return m
}

// WithRecorder sets the event sink.
func (m *Manager) WithRecorder(r Recorder) *Manager {
	m.recorder = r
	return m
}

// WithClock sets the clock for new sessions.
func (m *Manager) WithClock(c eventloop.Clock) *Manager {
	m.clock = c
	return m
}

// Create parses a document, scans it and registers the session.
func (m *Manager) Create(ctx context.Context, source, domainName string) (*Session, View, error) {
	doc, err := dom.Parse(strings.NewReader(source))
	if err != nil {
		return nil, View{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, View{}, domain.ErrTooManySessions
	}
	s := m.build(doc, domainName)
	m.sessions[s.id] = s
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	var (
		res     scan.Result
		view    View
		viewErr error
	)
	if err := s.loop.Do(ctx, func() {
		res = s.start()
		view, viewErr = s.view()
	}); err != nil || viewErr != nil {
		if err == nil {
			err = viewErr
		}
		_ = m.Close(s.id)
		return nil, View{}, err
	}
	s.logger.Debug("Session created",
		zap.Int("scanned", res.Scanned),
		zap.Int("matched", res.Matched),
		zap.Int("escalated", res.Escalated))
	return s, view, nil
}

func (m *Manager) build(doc *dom.Document, domainName string) *Session {
	id := uuid.NewString()
	logger := m.logger.With(zap.String("session", id))
	loop := eventloop.New(m.clock, logger.Named("loop"))

	s := &Session{
		id:      id,
		domain:  domainName,
		created: m.clock.Now(),
		loop:    loop,
		logger:  logger,
		doc:     doc,
		guards:  make(map[string]*composer.Guard),
	}

	s.scanner = scan.New(doc, m.matcher, nil, logger.Named("scanner")).
		WithMinEscalationLength(m.cfg.MinEscalationLength).
		WithDomain(domainName).
		WithClock(m.clock.Now).
		WithSurfaceHandler(s.attachGuard)
	if m.recorder != nil {
		s.scanner.WithRecorder(m.recorder)
	}

	if m.batch != nil {
		s.queue = escalation.New(loop, m.batch, m.cfg.Escalation, logger.Named("escalation")).
			WithDomain(domainName)
		if m.availability != nil {
			s.queue.WithAvailability(m.availability)
		}
		if m.recorder != nil {
			s.queue.WithRecorder(m.recorder)
		}
		s.scanner.WithEscalator(s.queue)
	}

	s.newGuard = func(sf dom.Surface) *composer.Guard {
		g := composer.New(loop, sf, m.matcher, m.text, m.cfg.Composer,
			logger.Named("composer").With(zap.String("surface", sf.ID()))).
			WithDomain(domainName)
		if m.availability != nil {
			g.WithAvailability(m.availability)
		}
		if m.recorder != nil {
			g.WithRecorder(m.recorder)
		}
		return g
	}
	return s
}

// Get finds a session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	return s, nil
}

// List returns session ids in creation order.
func (m *Manager) List() []string {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].created.Before(all[j].created) })
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.id
	}
	return ids
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		metrics.SessionsActive.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	s.close()
	return nil
}

// CloseAll stops every session.
func (m *Manager) CloseAll() {
	for _, id := range m.List() {
		_ = m.Close(id)
	}
}

// NewComposer creates a guard for a surface outside any document, such as a
// remote client. It gets its own loop.
func (m *Manager) NewComposer(surface composer.Surface, domainName string) *Composer {
	loop := eventloop.New(m.clock, m.logger.Named("loop"))
	g := composer.New(loop, surface, m.matcher, m.text, m.cfg.Composer, m.logger.Named("composer")).
		WithDomain(domainName)
	if m.availability != nil {
		g.WithAvailability(m.availability)
	}
	if m.recorder != nil {
		g.WithRecorder(m.recorder)
	}
	return &Composer{loop: loop, guard: g}
}
