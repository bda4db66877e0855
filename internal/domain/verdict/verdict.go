package verdict

import (
	"math"

	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

// Score categories reported by the detoxify backend.
const (
	CategoryToxicity       = "toxicity"
	CategorySevereToxicity = "severe_toxicity"
	CategoryObscene        = "obscene"
	CategoryThreat         = "threat"
	CategoryInsult         = "insult"
	CategoryIdentityAttack = "identity_attack"
)

// Severity thresholds used when a provider returns raw category scores.
const (
	HighToxicity       = 0.65
	HighThreat         = 0.50
	HighIdentityAttack = 0.50
	MediumToxicity     = 0.45
	LowToxicity        = 0.30
)

// Verdict is the classifier's judgement of one text.
type Verdict struct {
	Escalate bool
	Severity severity.Level
	// Score is the headline toxicity probability in [0, 1].
	Score  float64
	Scores map[string]float64
}

// Percent returns Score as a rounded percentage.
func (v Verdict) Percent() int {
	return int(math.Round(v.Score * 100))
}

// FromScores derives a verdict from raw category scores.
func FromScores(scores map[string]float64) Verdict {
	tox := scores[CategoryToxicity]
	threat := scores[CategoryThreat]
	ident := scores[CategoryIdentityAttack]

	var sev severity.Level
	switch {
	case tox > HighToxicity || threat > HighThreat || ident > HighIdentityAttack:
		sev = severity.High
	case tox > MediumToxicity:
		sev = severity.Medium
	case tox > LowToxicity:
		sev = severity.Low
	default:
		sev = severity.None
	}
	return Verdict{
		Escalate: sev != severity.None,
		Severity: sev,
		Score:    tox,
		Scores:   scores,
	}
}
