package lexicon

import "github.com/kailas-cloud/toxfilter/internal/domain/severity"

// SeverityOf classifies a matched term. Terms outside the high and medium sets
// classify as low, including text the lexicon does not know.
func (l *Lexicon) SeverityOf(term string) severity.Level {
	if lvl, ok := l.severities[normalize(term)]; ok {
		return lvl
	}
	return severity.Low
}

// Classify returns the highest severity among matches, or none when empty.
func Classify(matches []Match) severity.Level {
	out := severity.None
	for _, m := range matches {
		out = severity.Max(out, m.Severity)
	}
	return out
}
