package event

import (
	"time"

	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

// Source identifies the pipeline stage that produced an event.
type Source string

// Event sources.
const (
	SourceWordList  Source = "word-list"
	SourceAIUpgrade Source = "ai-upgrade"
	SourceAIOnly    Source = "ai-only"
	SourceComposer  Source = "composer-guard"
)

// IsValid checks if the source is one of the known values.
func (s Source) IsValid() bool {
	return s == SourceWordList || s == SourceAIUpgrade || s == SourceAIOnly || s == SourceComposer
}

// SnippetLen is the maximum number of runes of text kept per event.
const SnippetLen = 200

// Event is one detection record handed to the log sink.
type Event struct {
	Timestamp time.Time          `json:"timestamp"`
	Source    Source             `json:"source"`
	Word      string             `json:"word,omitempty"`
	Text      string             `json:"text"`
	Severity  severity.Level     `json:"severity"`
	Score     float64            `json:"hate_score,omitempty"`
	Scores    map[string]float64 `json:"detoxify_scores,omitempty"`
	Domain    string             `json:"domain,omitempty"`
}

// Snippet truncates text to SnippetLen runes.
func Snippet(text string) string {
	n := 0
	for i := range text {
		if n == SnippetLen {
			return text[:i]
		}
		n++
	}
	return text
}
