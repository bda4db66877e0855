package dom

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

const revealTitle = "Click to reveal"

// AnnotationKind tells lexicon redactions from classifier-only ones.
type AnnotationKind string

// Annotation kinds.
const (
	KindLexicon AnnotationKind = "lexicon"
	KindAI      AnnotationKind = "ai"
)

// Span is a byte range of a unit's text to redact.
type Span struct {
	Start    int
	End      int
	Word     string
	Severity severity.Level
}

// Wrapped is the outcome of redacting spans in one unit.
type Wrapped struct {
	Annotations []*Annotation
	// Fragments are the text nodes created for the derived representation.
	Fragments []Unit
}

// Annotation is a reversible, severity-tagged redaction.
type Annotation struct {
	id       string
	kind     AnnotationKind
	word     string
	score    float64
	el       *html.Node // carries the severity class
	blurred  *html.Node // ai only: the redacted text span
	badge    *html.Node // ai only
	revealed bool
}

// ID returns the annotation id, rendered as data-annotation-id.
func (a *Annotation) ID() string { return a.id }

// Kind returns the annotation kind.
func (a *Annotation) Kind() AnnotationKind { return a.kind }

// Word returns the matched term for lexicon annotations.
func (a *Annotation) Word() string { return a.word }

// Score returns the classifier score for AI annotations.
func (a *Annotation) Score() float64 { return a.score }

// Revealed reports whether the redaction was cleared.
func (a *Annotation) Revealed() bool { return a.revealed }

// Severity returns the current severity class.
func (a *Annotation) Severity() severity.Level {
	if l, ok := severity.FromClass(attr(a.el, "class")); ok {
		return l
	}
	return severity.None
}

// SetSeverity rewrites the severity class. Revealed annotations are left untouched.
func (a *Annotation) SetSeverity(l severity.Level) bool {
	if a.revealed {
		return false
	}
	setAttr(a.el, "class", severity.ReplaceClass(attr(a.el, "class"), l))
	return true
}

func (a *Annotation) reveal() error {
	if a.revealed {
		return fmt.Errorf("annotation %s: %w", a.id, domain.ErrAlreadyRevealed)
	}
	a.revealed = true
	switch a.kind {
	case KindAI:
		removeClass(a.blurred, ClassAIBlurred)
		removeAttr(a.blurred, "title")
		if a.badge != nil && a.badge.Parent != nil {
			a.badge.Parent.RemoveChild(a.badge)
		}
	default:
		removeAttr(a.el, "class", "title")
	}
	return nil
}

// WrapSpans replaces the unit with a wrapper where each span is redacted.
// Spans must be sorted and non-overlapping. A detached unit is left alone.
func (d *Document) WrapSpans(u Unit, spans []Span) (Wrapped, error) {
	n := u.node
	if n.Parent == nil || !d.Attached(n) {
		return Wrapped{}, domain.ErrUnitDetached
	}

	text := n.Data
	wrapper := element(atom.Span, html.Attribute{Key: attrScanWrapped, Val: "wrapped"})
	var out Wrapped
	appendText := func(s string) {
		if s == "" {
			return
		}
		t := textNode(s)
		wrapper.AppendChild(t)
		out.Fragments = append(out.Fragments, d.unit(t))
	}

	last := 0
	for _, sp := range spans {
		if sp.Start < last || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		appendText(text[last:sp.Start])

		a := &Annotation{id: uuid.NewString(), kind: KindLexicon, word: sp.Word}
		a.el = element(atom.Span,
			html.Attribute{Key: "class", Val: ClassWordBlur + " " + sp.Severity.Class()},
			html.Attribute{Key: "data-word", Val: sp.Word},
			html.Attribute{Key: "data-annotation-id", Val: a.id},
			html.Attribute{Key: "title", Val: revealTitle},
		)
		inner := textNode(text[sp.Start:sp.End])
		a.el.AppendChild(inner)
		out.Fragments = append(out.Fragments, d.unit(inner))
		wrapper.AppendChild(a.el)

		d.register(a)
		out.Annotations = append(out.Annotations, a)
		last = sp.End
	}
	appendText(text[last:])

	n.Parent.InsertBefore(wrapper, n)
	n.Parent.RemoveChild(n)
	return out, nil
}

// WrapAI redacts the whole unit with a classifier badge. A detached unit is left alone.
func (d *Document) WrapAI(u Unit, l severity.Level, score float64) (*Annotation, []Unit, error) {
	n := u.node
	if n.Parent == nil || !d.Attached(n) {
		return nil, nil, domain.ErrUnitDetached
	}

	a := &Annotation{id: uuid.NewString(), kind: KindAI, score: score}
	a.el = element(atom.Span,
		html.Attribute{Key: "class", Val: ClassAIWrap + " " + l.Class()},
		html.Attribute{Key: "data-annotation-id", Val: a.id},
	)
	a.badge = element(atom.Span, html.Attribute{Key: "class", Val: ClassAIBadge})
	badgeText := textNode(fmt.Sprintf("AI %d%%", percent(score)))
	a.badge.AppendChild(badgeText)
	a.blurred = element(atom.Span,
		html.Attribute{Key: "class", Val: ClassAIBlurred},
		html.Attribute{Key: "title", Val: revealTitle},
	)
	inner := textNode(n.Data)
	a.blurred.AppendChild(inner)
	a.el.AppendChild(a.badge)
	a.el.AppendChild(a.blurred)

	n.Parent.InsertBefore(a.el, n)
	n.Parent.RemoveChild(n)
	d.register(a)
	return a, []Unit{d.unit(badgeText), d.unit(inner)}, nil
}

// Annotation looks up an annotation by id.
func (d *Document) Annotation(id string) (*Annotation, error) {
	a, ok := d.annotations[id]
	if !ok {
		return nil, fmt.Errorf("annotation %s: %w", id, domain.ErrAnnotationNotFound)
	}
	return a, nil
}

// Annotations returns all annotations in creation order.
func (d *Document) Annotations() []*Annotation {
	out := make([]*Annotation, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.annotations[id])
	}
	return out
}

// Reveal permanently clears one redaction. A second reveal fails with ErrAlreadyRevealed.
func (d *Document) Reveal(id string) error {
	a, err := d.Annotation(id)
	if err != nil {
		return err
	}
	return a.reveal()
}

func (d *Document) register(a *Annotation) {
	d.annotations[a.id] = a
	d.order = append(d.order, a.id)
}

func percent(score float64) int {
	return int(math.Round(score * 100))
}
