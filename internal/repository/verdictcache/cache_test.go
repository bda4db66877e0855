package verdictcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
)

// --- Tests ---

func scoreOf(text string) verdict.Verdict {
	if text == "nasty" {
		return verdict.Verdict{Escalate: true, Severity: severity.High, Score: 0.9, Scores: map[string]float64{"toxicity": 0.9}}
	}
	return verdict.Verdict{Severity: severity.None, Score: 0.01}
}

func TestClassifyBatch_MissThenHit(t *testing.T) {
	inner := &mockClassifier{verdictFor: scoreOf}
	c, s, total := newTestCache(t, inner)
	ctx := context.Background()

	got, err := c.ClassifyBatch(ctx, []string{"nasty", "fine"})
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if !got[0].Escalate || got[0].Severity != severity.High || got[1].Escalate {
		t.Fatalf("verdicts = %+v", got)
	}
	if len(s.data) != 2 {
		t.Fatalf("cached entries = %d, want 2", len(s.data))
	}
	for k, ttl := range s.ttls {
		if ttl != time.Hour {
			t.Errorf("ttl for %s = %v", k, ttl)
		}
	}

	got, err = c.ClassifyBatch(ctx, []string{"fine", "nasty"})
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if got[0].Escalate || !got[1].Escalate || got[1].Scores["toxicity"] != 0.9 {
		t.Fatalf("cached verdicts = %+v", got)
	}
	if len(inner.batches) != 1 {
		t.Errorf("upstream batches = %d, want 1", len(inner.batches))
	}
	if hits := testutil.ToFloat64(total.WithLabelValues("hit")); hits != 2 {
		t.Errorf("hits = %v", hits)
	}
	if misses := testutil.ToFloat64(total.WithLabelValues("miss")); misses != 2 {
		t.Errorf("misses = %v", misses)
	}
}

func TestClassifyBatch_OnlyMissesGoUpstream(t *testing.T) {
	inner := &mockClassifier{verdictFor: scoreOf}
	c, _, _ := newTestCache(t, inner)
	ctx := context.Background()

	if _, err := c.ClassifyBatch(ctx, []string{"b"}); err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	got, err := c.ClassifyBatch(ctx, []string{"a", "b", "nasty"})
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if len(got) != 3 || !got[2].Escalate {
		t.Fatalf("verdicts = %+v", got)
	}
	last := inner.batches[len(inner.batches)-1]
	if len(last) != 2 || last[0] != "a" || last[1] != "nasty" {
		t.Errorf("upstream texts = %v", last)
	}
}

func TestClassifyBatch_InnerError(t *testing.T) {
	inner := &mockClassifier{err: domain.ErrClassifierUnavailable}
	c, s, _ := newTestCache(t, inner)

	_, err := c.ClassifyBatch(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
	if len(s.data) != 0 {
		t.Error("failed batch must not be cached")
	}
}

type shortClassifier struct{ mockClassifier }

func (s *shortClassifier) ClassifyBatch(_ context.Context, _ []string) ([]verdict.Verdict, error) {
	return []verdict.Verdict{{}}, nil
}

func TestClassifyBatch_CountMismatch(t *testing.T) {
	inner := &shortClassifier{}
	c := New(inner, newMockKVStore(), "detoxify", time.Hour, nil, nil)

	_, err := c.ClassifyBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClassifyText_Cached(t *testing.T) {
	inner := &mockClassifier{verdictFor: scoreOf}
	c, _, _ := newTestCache(t, inner)
	ctx := context.Background()

	for range 3 {
		v, err := c.ClassifyText(ctx, "nasty")
		if err != nil {
			t.Fatalf("ClassifyText: %v", err)
		}
		if !v.Escalate {
			t.Fatalf("verdict = %+v", v)
		}
	}
	if len(inner.texts) != 1 {
		t.Errorf("upstream calls = %d, want 1", len(inner.texts))
	}

	// Batch and text checks share entries.
	if _, err := c.ClassifyBatch(ctx, []string{"nasty"}); err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if len(inner.batches) != 0 {
		t.Errorf("upstream batches = %d, want 0", len(inner.batches))
	}
}

func TestStoreErrors_FallThroughCountedAsError(t *testing.T) {
	inner := &mockClassifier{verdictFor: scoreOf}
	c, s, total := newTestCache(t, inner)
	s.getErr = errors.New("connection refused")
	s.setErr = errors.New("connection refused")

	v, err := c.ClassifyText(context.Background(), "nasty")
	if err != nil {
		t.Fatalf("ClassifyText: %v", err)
	}
	if !v.Escalate || len(inner.texts) != 1 {
		t.Errorf("verdict = %+v, calls = %d", v, len(inner.texts))
	}
	if got := testutil.ToFloat64(total.WithLabelValues("error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(total.WithLabelValues("miss")); got != 0 {
		t.Errorf("miss = %v, want 0", got)
	}
}

func TestCorruptEntry_IsMiss(t *testing.T) {
	inner := &mockClassifier{verdictFor: scoreOf}
	c, s, _ := newTestCache(t, inner)
	s.data[c.key("nasty")] = []byte("{not json")

	if _, err := c.ClassifyText(context.Background(), "nasty"); err != nil {
		t.Fatalf("ClassifyText: %v", err)
	}
	if len(inner.texts) != 1 {
		t.Errorf("upstream calls = %d, want 1", len(inner.texts))
	}
	var e entry
	if err := json.Unmarshal(s.data[c.key("nasty")], &e); err != nil || e.Severity != severity.High {
		t.Errorf("entry not rewritten: %s", s.data[c.key("nasty")])
	}
}

func TestKey_NamespacedAndStable(t *testing.T) {
	a := New(&mockClassifier{}, newMockKVStore(), "detoxify", 0, nil, nil)
	b := New(&mockClassifier{}, newMockKVStore(), "openai", 0, nil, nil)

	if a.key("x") != a.key("x") {
		t.Error("key not stable")
	}
	if a.key("x") == a.key("y") {
		t.Error("different texts share a key")
	}
	if a.key("x") == b.key("x") {
		t.Error("providers share a key")
	}
}

func TestHealthCheck_Delegates(t *testing.T) {
	inner := &mockClassifier{healthErr: domain.ErrClassifierUnavailable}
	c, _, _ := newTestCache(t, inner)

	if err := c.HealthCheck(context.Background()); !errors.Is(err, domain.ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
}
