package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/dom"
	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/eventloop"
	"github.com/kailas-cloud/toxfilter/internal/usecase/composer"
	"github.com/kailas-cloud/toxfilter/internal/usecase/escalation"
	"github.com/kailas-cloud/toxfilter/internal/usecase/scan"
)

// AnnotationView describes one redaction.
type AnnotationView struct {
	ID       string             `json:"id"`
	Kind     dom.AnnotationKind `json:"kind"`
	Word     string             `json:"word,omitempty"`
	Severity severity.Level     `json:"severity"`
	Score    float64            `json:"score,omitempty"`
	Revealed bool               `json:"revealed"`
}

// SurfaceView describes one editable surface and its guard.
type SurfaceView struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"`
	Composer composer.Snapshot `json:"composer"`
}

// View is a rendered snapshot of a session.
type View struct {
	ID          string           `json:"id"`
	Domain      string           `json:"domain,omitempty"`
	HTML        string           `json:"html"`
	Annotations []AnnotationView `json:"annotations"`
	Surfaces    []SurfaceView    `json:"surfaces"`
	Pending     int              `json:"pending_escalations"`
}

// Session is one document with its own event loop. Every exported method
// hops onto the loop, so a Session is safe for concurrent use.
type Session struct {
	id      string
	domain  string
	created time.Time
	loop    *eventloop.Loop
	logger  *zap.Logger

	doc      *dom.Document
	scanner  *scan.Scanner
	queue    *escalation.Queue
	guards   map[string]*composer.Guard
	newGuard func(dom.Surface) *composer.Guard
	stop     []func()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Domain returns the domain events are tagged with.
func (s *Session) Domain() string { return s.domain }

// Created returns the creation time.
func (s *Session) Created() time.Time { return s.created }

// start scans the document body and begins observing mutations. Runs on the loop.
func (s *Session) start() scan.Result {
	s.stop = append(s.stop, s.scanner.Observe(), s.doc.Subscribe(s.onMutation))
	return s.scanner.Scan(s.doc.Body())
}

func (s *Session) onMutation(m dom.Mutation) {
	for _, n := range m.Removed {
		for _, id := range s.doc.ReleaseSurfaces(n) {
			if g, ok := s.guards[id]; ok {
				g.Close()
				delete(s.guards, id)
			}
		}
	}
}

func (s *Session) attachGuard(sf dom.Surface) {
	if _, ok := s.guards[sf.ID()]; ok {
		return
	}
	s.guards[sf.ID()] = s.newGuard(sf)
}

// View renders the current document and annotation state.
func (s *Session) View(ctx context.Context) (View, error) {
	var (
		v   View
		err error
	)
	if derr := s.loop.Do(ctx, func() { v, err = s.view() }); derr != nil {
		return View{}, derr
	}
	return v, err
}

func (s *Session) view() (View, error) {
	out, err := s.doc.HTML()
	if err != nil {
		return View{}, fmt.Errorf("render: %w", err)
	}
	v := View{
		ID:          s.id,
		Domain:      s.domain,
		HTML:        out,
		Annotations: make([]AnnotationView, 0),
		Surfaces:    make([]SurfaceView, 0),
	}
	for _, a := range s.doc.Annotations() {
		v.Annotations = append(v.Annotations, AnnotationView{
			ID:       a.ID(),
			Kind:     a.Kind(),
			Word:     a.Word(),
			Severity: a.Severity(),
			Score:    a.Score(),
			Revealed: a.Revealed(),
		})
	}
	for _, sf := range s.doc.Surfaces() {
		sv := SurfaceView{ID: sf.ID(), Kind: sf.Kind()}
		if g, ok := s.guards[sf.ID()]; ok {
			sv.Composer = g.Snapshot()
		}
		v.Surfaces = append(v.Surfaces, sv)
	}
	if s.queue != nil {
		v.Pending = s.queue.Pending()
	}
	return v, nil
}

// AppendFragment inserts HTML under the element with parentID (body when empty).
// New text is scanned before the call returns.
func (s *Session) AppendFragment(ctx context.Context, parentID, fragment string) (View, error) {
	var (
		v   View
		err error
	)
	derr := s.loop.Do(ctx, func() {
		if _, err = s.doc.Append(parentID, fragment); err != nil {
			return
		}
		v, err = s.view()
	})
	if derr != nil {
		return View{}, derr
	}
	return v, err
}

// RemoveNode detaches the element with the given id.
func (s *Session) RemoveNode(ctx context.Context, nodeID string) error {
	return s.run(ctx, func() error { return s.doc.Remove(nodeID) })
}

// Reveal unblurs an annotation once.
func (s *Session) Reveal(ctx context.Context, annotationID string) error {
	return s.run(ctx, func() error { return s.doc.Reveal(annotationID) })
}

// Flush sends every queued escalation and waits for the replies to be applied.
func (s *Session) Flush(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	for {
		pending := 0
		if err := s.loop.Do(ctx, func() {
			s.queue.Flush()
			pending = s.queue.Pending()
		}); err != nil {
			return err
		}
		s.loop.Settle()
		if pending == 0 {
			return nil
		}
	}
}

// Input replaces a surface's text and runs the guard's input handler.
func (s *Session) Input(ctx context.Context, surfaceID, text string) (composer.Snapshot, error) {
	return s.withGuard(ctx, surfaceID, func(sf dom.Surface, g *composer.Guard) {
		sf.SetText(text)
		g.OnInput()
	})
}

// Blur cancels a surface's pending remote check.
func (s *Session) Blur(ctx context.Context, surfaceID string) (composer.Snapshot, error) {
	return s.withGuard(ctx, surfaceID, func(_ dom.Surface, g *composer.Guard) { g.OnBlur() })
}

// Dismiss hides a surface's warning.
func (s *Session) Dismiss(ctx context.Context, surfaceID string) (composer.Snapshot, error) {
	return s.withGuard(ctx, surfaceID, func(_ dom.Surface, g *composer.Guard) { g.Dismiss() })
}

// SurfaceState returns a surface's guard state.
func (s *Session) SurfaceState(ctx context.Context, surfaceID string) (composer.Snapshot, error) {
	return s.withGuard(ctx, surfaceID, func(dom.Surface, *composer.Guard) {})
}

func (s *Session) withGuard(ctx context.Context, surfaceID string, fn func(dom.Surface, *composer.Guard)) (composer.Snapshot, error) {
	var snap composer.Snapshot
	err := s.run(ctx, func() error {
		sf, ok := s.doc.Surface(surfaceID)
		g, gok := s.guards[surfaceID]
		if !ok || !gok {
			return fmt.Errorf("surface %q: %w", surfaceID, domain.ErrSurfaceNotFound)
		}
		fn(sf, g)
		snap = g.Snapshot()
		return nil
	})
	return snap, err
}

// Settle waits until the session has no queued work or in-flight requests.
func (s *Session) Settle() { s.loop.Settle() }

func (s *Session) run(ctx context.Context, fn func() error) error {
	var err error
	if derr := s.loop.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// close stops guards, the queue and the loop.
func (s *Session) close() {
	_ = s.loop.Do(context.Background(), func() {
		for _, stop := range s.stop {
			stop()
		}
		for id, g := range s.guards {
			g.Close()
			delete(s.guards, id)
		}
		if s.queue != nil {
			s.queue.Close()
		}
	})
	s.loop.Close()
}
