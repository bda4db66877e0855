// Package verdictcache caches classifier verdicts in a key-value store so
// repeated texts (quoted replies, signatures, re-rendered pages) skip the
// remote round-trip.
package verdictcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/db"
	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
)

const keyPrefix = "toxfilter:verdict:"

// Classifier is the remote classifier being cached.
type Classifier interface {
	ClassifyBatch(ctx context.Context, texts []string) ([]verdict.Verdict, error)
	ClassifyText(ctx context.Context, text string) (verdict.Verdict, error)
	HealthCheck(ctx context.Context) error
}

// store is the consumer interface for the verdict cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached is a caching decorator over a Classifier. Safe for concurrent use.
// Store failures degrade to a cache miss.
type Cached struct {
	inner      Classifier
	store      store
	namespace  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. namespace separates providers so a
// provider switch never serves stale verdicts. cacheTotal is a counter vec
// with label "result" ("hit", "miss", or "error" when the store fails), passed explicitly.
func New(
	inner Classifier,
	s store,
	namespace string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		inner:      inner,
		store:      s,
		namespace:  namespace,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// entry is the stored form of a verdict.
type entry struct {
	Escalate bool               `json:"escalate"`
	Severity severity.Level     `json:"severity"`
	Score    float64            `json:"score"`
	Scores   map[string]float64 `json:"scores,omitempty"`
}

// ClassifyBatch serves cached verdicts and sends only the misses upstream,
// preserving positions. Result i belongs to text i.
func (c *Cached) ClassifyBatch(ctx context.Context, texts []string) ([]verdict.Verdict, error) {
	out := make([]verdict.Verdict, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		if v, ok := c.get(ctx, t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	verdicts, err := c.inner.ClassifyBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(verdicts) != len(missTexts) {
		return nil, fmt.Errorf("batch returned %d results for %d texts: %w",
			len(verdicts), len(missTexts), domain.ErrMalformedResponse)
	}
	for j, i := range missIdx {
		out[i] = verdicts[j]
		c.put(ctx, missTexts[j], verdicts[j])
	}
	return out, nil
}

// ClassifyText returns a cached verdict or asks the inner classifier.
func (c *Cached) ClassifyText(ctx context.Context, text string) (verdict.Verdict, error) {
	if v, ok := c.get(ctx, text); ok {
		return v, nil
	}
	v, err := c.inner.ClassifyText(ctx, text)
	if err != nil {
		return verdict.Verdict{}, err
	}
	c.put(ctx, text, v)
	return v, nil
}

// HealthCheck probes the inner classifier. A reachable cache does not make
// the classifier available.
func (c *Cached) HealthCheck(ctx context.Context) error {
	return c.inner.HealthCheck(ctx)
}

func (c *Cached) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return keyPrefix + c.namespace + ":" + hex.EncodeToString(h[:])
}

func (c *Cached) get(ctx context.Context, text string) (verdict.Verdict, bool) {
	key := c.key(text)
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		c.inc("miss")
		return verdict.Verdict{}, false
	}
	if err != nil {
		c.logger.Warn("Failed to get cached verdict", zap.String("key", key), zap.Error(err))
		c.inc("error")
		return verdict.Verdict{}, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || !e.Severity.IsValid() {
		c.logger.Warn("Failed to parse cached verdict", zap.String("key", key), zap.Error(err))
		c.inc("miss")
		return verdict.Verdict{}, false
	}
	c.inc("hit")
	return verdict.Verdict{Escalate: e.Escalate, Severity: e.Severity, Score: e.Score, Scores: e.Scores}, true
}

func (c *Cached) put(ctx context.Context, text string, v verdict.Verdict) {
	data, err := json.Marshal(entry{Escalate: v.Escalate, Severity: v.Severity, Score: v.Score, Scores: v.Scores})
	if err != nil {
		return
	}
	if err := c.store.SetWithTTL(ctx, c.key(text), data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache verdict", zap.Error(err))
	}
}

func (c *Cached) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
