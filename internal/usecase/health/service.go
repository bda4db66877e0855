package health

import "context"

// Status is the aggregated health of the service.
type Status string

const (
	// Healthy means every configured dependency answered.
	Healthy Status = "ok"
	// Degraded means some dependency failed. Detection keeps running lexicon-only.
	Degraded Status = "degraded"
	// Unhealthy means every configured dependency failed, with more than one configured.
	Unhealthy Status = "error"
)

// CheckResult is the outcome of one dependency probe.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Mode is the detection mode implied by classifier health.
type Mode string

const (
	// ModeFull runs the lexicon and the remote classifier.
	ModeFull Mode = "full"
	// ModeLexiconOnly runs the lexicon alone.
	ModeLexiconOnly Mode = "lexicon_only"
)

// Check names as they appear in Report.Checks and on /health.
const (
	CheckEventLog   = "eventlog"
	CheckClassifier = "classifier"
)

// Report is one health evaluation.
type Report struct {
	Status Status
	Mode   Mode
	Checks map[string]CheckResult
}

type probe struct {
	name string
	run  func(context.Context) error
}

// Service evaluates the event log store and the classifier.
type Service struct {
	probes        []probe
	hasClassifier bool
}

// New creates a Service. Either dependency can be nil when not configured.
func New(store StorePinger, classifier ClassifierChecker) *Service {
	s := &Service{}
	if store != nil {
		s.probes = append(s.probes, probe{name: CheckEventLog, run: store.Ping})
	}
	if classifier != nil {
		s.probes = append(s.probes, probe{name: CheckClassifier, run: classifier.HealthCheck})
		s.hasClassifier = true
	}
	return s
}

// Check probes every configured dependency in turn.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Status: Healthy, Mode: ModeLexiconOnly, Checks: make(map[string]CheckResult, len(s.probes))}

	failed := 0
	for _, p := range s.probes {
		if err := p.run(ctx); err != nil {
			r.Checks[p.name] = CheckError
			failed++
			continue
		}
		r.Checks[p.name] = CheckOK
	}

	if s.hasClassifier && r.Checks[CheckClassifier] == CheckOK {
		r.Mode = ModeFull
	}
	switch {
	case failed == 0:
	case failed == len(s.probes) && failed > 1:
		r.Status = Unhealthy
	default:
		r.Status = Degraded
	}
	return r
}
