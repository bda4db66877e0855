package metrics

import "github.com/prometheus/client_golang/prometheus"

// Detection pipeline Prometheus metrics.
var (
	LexiconMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toxfilter",
			Name:      "lexicon_matches_total",
			Help:      "Total lexicon matches annotated",
		},
		[]string{"severity"},
	)

	UnitsScannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toxfilter",
			Name:      "units_scanned_total",
			Help:      "Total text units scanned",
		},
		[]string{"outcome"}, // "matched" / "escalated" / "clean" / "skipped" / "detached" / "panic"
	)

	EscalationBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toxfilter",
			Name:      "escalation_batches_total",
			Help:      "Total escalation batches by outcome",
		},
		[]string{"status"}, // "ok" / "failed" / "malformed" / "skipped"
	)

	EscalationBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "toxfilter",
			Name:      "escalation_batch_size",
			Help:      "Number of texts per escalation batch",
			Buckets:   []float64{1, 2, 4, 6, 8, 10, 12, 16, 24, 32},
		},
	)

	EscalationVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toxfilter",
			Name:      "escalation_verdicts_total",
			Help:      "Total classifier verdicts applied",
		},
		[]string{"action"}, // "upgrade" / "ai_only" / "ignored" / "detached"
	)

	ClassifierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toxfilter",
			Name:      "classifier_requests_total",
			Help:      "Total classifier requests",
		},
		[]string{"provider", "endpoint", "status"},
	)

	ClassifierRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toxfilter",
			Name:      "classifier_request_duration_seconds",
			Help:      "Classifier request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"provider", "endpoint"},
	)

	VerdictCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toxfilter",
			Name:      "verdict_cache_total",
			Help:      "Total verdict cache lookups",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	ClassifierAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "toxfilter",
			Name:      "classifier_available",
			Help:      "1 when the last classifier health probe succeeded",
		},
	)

	ComposerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toxfilter",
			Name:      "composer_transitions_total",
			Help:      "Total composer guard state transitions",
		},
		[]string{"from", "to"},
	)

	EventLogEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toxfilter",
			Name:      "eventlog_events_total",
			Help:      "Total detection events handed to the log sink",
		},
		[]string{"status"}, // "written" / "dropped" / "failed"
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "toxfilter",
			Name:      "sessions_active",
			Help:      "Number of open scanning sessions",
		},
	)
)

var detectionMetricsRegistered bool

// RegisterDetectionMetrics registers Prometheus detection metrics. Must be called once from main.
func RegisterDetectionMetrics() {
	if detectionMetricsRegistered {
		return
	}
	prometheus.MustRegister(LexiconMatchesTotal)
	prometheus.MustRegister(UnitsScannedTotal)
	prometheus.MustRegister(EscalationBatchesTotal)
	prometheus.MustRegister(EscalationBatchSize)
	prometheus.MustRegister(EscalationVerdictsTotal)
	prometheus.MustRegister(ClassifierRequestsTotal)
	prometheus.MustRegister(ClassifierRequestDuration)
	prometheus.MustRegister(VerdictCacheTotal)
	prometheus.MustRegister(ClassifierAvailable)
	prometheus.MustRegister(ComposerTransitionsTotal)
	prometheus.MustRegister(EventLogEventsTotal)
	prometheus.MustRegister(SessionsActive)
	detectionMetricsRegistered = true
}
