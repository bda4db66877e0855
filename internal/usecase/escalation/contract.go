package escalation

import (
	"context"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
)

// Classifier classifies texts in one round-trip. Result i belongs to text i.
type Classifier interface {
	ClassifyBatch(ctx context.Context, texts []string) ([]verdict.Verdict, error)
}

// Availability reports whether the classifier is believed reachable.
type Availability interface {
	Available() bool
}

// Recorder accepts detection events for the log sink.
type Recorder interface {
	Record(e event.Event)
}

// Annotation is an existing lexicon redaction whose severity may be upgraded.
type Annotation interface {
	Severity() severity.Level
	SetSeverity(l severity.Level) bool
}

// Fallback redacts the whole unit when the classifier flags text with no lexicon hit.
type Fallback interface {
	WrapAI(l severity.Level, score float64) error
}

// Item is one text queued for classification.
type Item struct {
	Text        string
	Annotations []Annotation
	Fallback    Fallback
}
