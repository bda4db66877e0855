package session

import (
	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/usecase/composer"
	"github.com/kailas-cloud/toxfilter/internal/usecase/scan"
)

// Matcher is the compiled lexicon shared by every session.
type Matcher interface {
	scan.Matcher
	composer.Matcher
}

// Availability reports whether the classifier is believed reachable.
type Availability interface {
	Available() bool
}

// Recorder accepts detection events for the log sink.
type Recorder interface {
	Record(e event.Event)
}
