package health

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/toxfilter/internal/metrics"
)

// Monitor probes the classifier and caches the result as the passive status indicator.
// Concurrent probes share one request.
type Monitor struct {
	checker ClassifierChecker
	timeout time.Duration
	logger  *zap.Logger

	group     singleflight.Group
	available atomic.Bool
}

// NewMonitor creates a monitor. Until the first probe the classifier is reported unavailable.
func NewMonitor(checker ClassifierChecker, timeout time.Duration, logger *zap.Logger) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{checker: checker, timeout: timeout, logger: logger}
}

// Available reports the result of the last probe.
func (m *Monitor) Available() bool {
	return m.available.Load()
}

// HealthCheck probes the classifier now.
func (m *Monitor) HealthCheck(ctx context.Context) error {
	_, err, _ := m.group.Do("probe", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		err := m.checker.HealthCheck(ctx)
		m.set(err == nil, err)
		return nil, err
	})
	return err
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	_ = m.HealthCheck(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.HealthCheck(ctx)
		}
	}
}

func (m *Monitor) set(ok bool, err error) {
	prev := m.available.Swap(ok)
	if ok {
		metrics.ClassifierAvailable.Set(1)
	} else {
		metrics.ClassifierAvailable.Set(0)
	}
	switch {
	case ok && !prev:
		m.logger.Info("Classifier available")
	case !ok && prev:
		m.logger.Warn("Classifier unavailable, lexicon-only mode", zap.Error(err))
	}
}
