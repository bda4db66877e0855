package verdictcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/db"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
)

// --- Mocks ---

type mockClassifier struct {
	mu         sync.Mutex
	verdictFor func(text string) verdict.Verdict
	err        error
	batches    [][]string
	texts      []string
	healthErr  error
}

func (m *mockClassifier) ClassifyBatch(_ context.Context, texts []string) ([]verdict.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	if m.err != nil {
		return nil, m.err
	}
	out := make([]verdict.Verdict, len(texts))
	for i, t := range texts {
		out[i] = m.verdictFor(t)
	}
	return out, nil
}

func (m *mockClassifier) ClassifyText(_ context.Context, text string) (verdict.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	if m.err != nil {
		return verdict.Verdict{}, m.err
	}
	return m.verdictFor(text), nil
}

func (m *mockClassifier) HealthCheck(_ context.Context) error { return m.healthErr }

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

// --- Helpers ---

func newTestCache(t *testing.T, inner *mockClassifier) (*Cached, *mockKVStore, *prometheus.CounterVec) {
	t.Helper()
	if inner.verdictFor == nil {
		inner.verdictFor = func(text string) verdict.Verdict {
			return verdict.Verdict{Severity: "none"}
		}
	}
	s := newMockKVStore()
	total := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_verdict_cache_total"}, []string{"result"})
	return New(inner, s, "detoxify", time.Hour, total, zap.NewNop()), s, total
}
