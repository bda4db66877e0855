package toxfilter

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sdkMetrics are the collectors behind WithPrometheus.
type sdkMetrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	annotations *prometheus.CounterVec
	checks      *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "toxfilter", Subsystem: "sdk", Name: name, Help: help}
	}

	var errs []error
	m := &sdkMetrics{
		operations: shared(reg, prometheus.NewCounterVec(
			opts("operations_total", "SDK calls by operation and outcome."),
			[]string{"operation", "outcome"}), &errs),
		duration: shared(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toxfilter",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK call latency.",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.25, 1, 2.5, 10},
		}, []string{"operation"}), &errs),
		annotations: shared(reg, prometheus.NewCounterVec(
			opts("annotations_total", "Redactions returned by ScanHTML, by kind and severity."),
			[]string{"kind", "severity"}), &errs),
		checks: shared(reg, prometheus.NewCounterVec(
			opts("text_checks_total", "CheckText results by severity."),
			[]string{"severity"}), &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// shared registers c, or returns the collector already registered under the
// same descriptor so several filters can report into one registry.
func shared[T prometheus.Collector](reg prometheus.Registerer, c T, errs *[]error) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		*errs = append(*errs, fmt.Errorf("toxfilter: register metric: %w", err))
		return c
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		*errs = append(*errs, fmt.Errorf("toxfilter: metric registered as %T", are.ExistingCollector))
		return c
	}
	return existing
}

// observer reports SDK calls to the optional logger and registry.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg == nil {
		return o, nil
	}
	m, err := newSDKMetrics(reg)
	if err != nil {
		return nil, err
	}
	o.metrics = m
	return o, nil
}

// observe records one finished call. attrs are slog key/value pairs.
func (o *observer) observe(op string, start time.Time, err error, attrs ...any) {
	elapsed := time.Since(start)
	if o.metrics != nil {
		outcome := "ok"
		switch {
		case errors.Is(err, ErrClosed):
			outcome = "closed"
		case err != nil:
			outcome = "error"
		}
		o.metrics.operations.WithLabelValues(op, outcome).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
	if o.logger == nil {
		return
	}
	attrs = append(attrs, "op", op, "elapsed", elapsed)
	if err != nil {
		o.logger.Warn("toxfilter call failed", append(attrs, "error", err)...)
		return
	}
	o.logger.Debug("toxfilter call", attrs...)
}

func (o *observer) scanned(res Result) {
	if o.metrics == nil {
		return
	}
	for _, a := range res.Annotations {
		kind := "lexicon"
		if a.AI {
			kind = "ai"
		}
		o.metrics.annotations.WithLabelValues(kind, string(a.Severity)).Inc()
	}
}

func (o *observer) checked(c TextCheck) {
	if o.metrics == nil {
		return
	}
	o.metrics.checks.WithLabelValues(string(c.Severity)).Inc()
}

func (o *observer) debug(msg string, attrs ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, attrs...)
	}
}
