package toxfilter

import (
	"time"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
	"github.com/kailas-cloud/toxfilter/internal/lexicon"
	"github.com/kailas-cloud/toxfilter/internal/usecase/session"
)

// Severity classifies a match or verdict.
type Severity string

// Severity levels, lowest first.
const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// LexiconSource is one language's term lists.
type LexiconSource struct {
	Language string
	High     []string
	Medium   []string
	Low      []string
}

// Verdict is a classifier's judgement of one text.
type Verdict struct {
	Escalate bool
	Severity Severity
	Score    float64 // headline toxicity in [0, 1]
	Scores   map[string]float64
}

// Annotation is one redaction in a scanned document.
type Annotation struct {
	ID       string
	AI       bool // flagged by the classifier without a lexicon hit
	Word     string
	Severity Severity
	Score    float64
}

// Result is an annotated document.
type Result struct {
	HTML        string
	Annotations []Annotation
}

// TextCheck is the outcome of CheckText.
type TextCheck struct {
	Flagged  bool
	Severity Severity
	Words    []string // lexicon terms found in the text
	AI       *Verdict // nil when the classifier was not consulted or failed
}

// Status is the filter's health.
type Status struct {
	Status string            // "ok", "degraded", "error"
	Mode   string            // "full" or "lexicon_only"
	Checks map[string]string // component -> "ok"/"error"
}

// Event is a detection record passed to a Recorder.
type Event struct {
	Timestamp time.Time
	Source    string // word-list, ai-upgrade, ai-only, composer-guard
	Word      string
	Text      string
	Severity  Severity
	Score     float64
	Scores    map[string]float64
	Domain    string
}

func (s LexiconSource) toInternal() lexicon.Source {
	return lexicon.Source{Language: s.Language, High: s.High, Medium: s.Medium, Low: s.Low}
}

func verdictFromInternal(v verdict.Verdict) Verdict {
	return Verdict{Escalate: v.Escalate, Severity: Severity(v.Severity), Score: v.Score, Scores: v.Scores}
}

func (v Verdict) toInternal() verdict.Verdict {
	return verdict.Verdict{Escalate: v.Escalate, Severity: severity.Level(v.Severity), Score: v.Score, Scores: v.Scores}
}

func eventFromInternal(e event.Event) Event {
	return Event{
		Timestamp: e.Timestamp,
		Source:    string(e.Source),
		Word:      e.Word,
		Text:      e.Text,
		Severity:  Severity(e.Severity),
		Score:     e.Score,
		Scores:    e.Scores,
		Domain:    e.Domain,
	}
}

func resultFromView(v session.View) Result {
	out := Result{HTML: v.HTML, Annotations: make([]Annotation, len(v.Annotations))}
	for i, a := range v.Annotations {
		out.Annotations[i] = Annotation{
			ID:       a.ID,
			AI:       a.Kind == "ai",
			Word:     a.Word,
			Severity: Severity(a.Severity),
			Score:    a.Score,
		}
	}
	return out
}
