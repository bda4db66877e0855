package composer

import (
	"context"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
)

// Surface is an editable element: document input, rich editable or a remote client.
type Surface interface {
	Text() string
	SetWarning(w domain.Warning)
	ClearWarning()
}

// Matcher runs the instant lexicon check.
type Matcher interface {
	MatchString(text string) bool
}

// TextClassifier classifies a single text.
type TextClassifier interface {
	ClassifyText(ctx context.Context, text string) (verdict.Verdict, error)
}

// Availability reports whether the classifier is believed reachable.
type Availability interface {
	Available() bool
}

// Recorder accepts detection events for the log sink.
type Recorder interface {
	Record(e event.Event)
}
