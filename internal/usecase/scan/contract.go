package scan

import (
	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/lexicon"
	"github.com/kailas-cloud/toxfilter/internal/usecase/escalation"
)

// Matcher finds lexicon terms in text.
type Matcher interface {
	FindAll(text string) []lexicon.Match
}

// Escalator receives units for remote classification.
type Escalator interface {
	Enqueue(item escalation.Item)
}

// Recorder accepts detection events for the log sink.
type Recorder interface {
	Record(e event.Event)
}
