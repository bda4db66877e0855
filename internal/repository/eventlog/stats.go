package eventlog

import (
	"time"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

// Stats summarizes the stored events.
type Stats struct {
	Total      int                    `json:"total"`
	Today      int                    `json:"today"`
	BySource   map[event.Source]int   `json:"by_source"`
	BySeverity map[severity.Level]int `json:"by_severity"`
	TopWords   map[string]int         `json:"top_words,omitempty"`
}

// Summarize counts events. "Today" is the calendar day of now in now's location.
func Summarize(events []event.Event, now time.Time) Stats {
	s := Stats{
		Total:      len(events),
		BySource:   make(map[event.Source]int),
		BySeverity: make(map[severity.Level]int),
		TopWords:   make(map[string]int),
	}
	y, m, d := now.Date()
	for _, e := range events {
		ey, em, ed := e.Timestamp.In(now.Location()).Date()
		if ey == y && em == m && ed == d {
			s.Today++
		}
		s.BySource[e.Source]++
		s.BySeverity[e.Severity]++
		if e.Word != "" {
			s.TopWords[e.Word]++
		}
	}
	return s
}
