// Package classifier calls the remote toxicity backend over HTTP/JSON.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
)

const (
	provider = "detoxify"

	endpointBatch  = "/analyze/batch"
	endpointText   = "/analyze/text"
	endpointHealth = "/health"

	maxResponseBytes = 4 << 20
)

// Config holds the backend client settings.
type Config struct {
	BaseURL string
	// Timeout bounds a request when the caller's context has no earlier deadline.
	Timeout time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Logger    *zap.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a backend client pointing at the given base URL
// (e.g. "http://localhost:5000").
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

type batchRequest struct {
	Texts []string `json:"texts"`
}

type textRequest struct {
	Text string `json:"text"`
}

type batchResponse struct {
	Results []result `json:"results"`
}

type result struct {
	ShouldBlur       bool     `json:"should_blur"`
	CombinedSeverity string   `json:"combined_severity"`
	Detoxify         detoxify `json:"detoxify"`
}

type detoxify struct {
	Score  float64            `json:"score"`
	Scores map[string]float64 `json:"scores"`
}

// ClassifyBatch implements escalation.Classifier. Result i belongs to text i.
func (c *Client) ClassifyBatch(ctx context.Context, texts []string) ([]verdict.Verdict, error) {
	var resp batchResponse
	if err := c.post(ctx, endpointBatch, batchRequest{Texts: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(texts) {
		metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpointBatch, "malformed").Inc()
		return nil, fmt.Errorf("batch returned %d results for %d texts: %w",
			len(resp.Results), len(texts), domain.ErrMalformedResponse)
	}

	out := make([]verdict.Verdict, len(resp.Results))
	for i, r := range resp.Results {
		v, err := r.verdict()
		if err != nil {
			metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpointBatch, "malformed").Inc()
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		out[i] = v
	}
	metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpointBatch, "success").Inc()
	return out, nil
}

// ClassifyText implements composer.TextClassifier.
func (c *Client) ClassifyText(ctx context.Context, text string) (verdict.Verdict, error) {
	var r result
	if err := c.post(ctx, endpointText, textRequest{Text: text}, &r); err != nil {
		return verdict.Verdict{}, err
	}
	v, err := r.verdict()
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpointText, "malformed").Inc()
		return verdict.Verdict{}, err
	}
	metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpointText, "success").Inc()
	return v, nil
}

// HealthCheck probes GET /health. Any non-2xx reply counts as unavailable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpointHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w: %w", err, domain.ErrClassifierUnavailable)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health probe status %d: %w", resp.StatusCode, domain.ErrClassifierUnavailable)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpoint, "throttled").Inc()
			return fmt.Errorf("rate limit: %w: %w", err, domain.ErrClassifierUnavailable)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ClassifierRequestDuration.WithLabelValues(provider, endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpoint, "error").Inc()
		c.logger.Debug("Classifier unreachable", zap.String("endpoint", endpoint), zap.Error(err))
		return fmt.Errorf("post %s: %w: %w", endpoint, err, domain.ErrClassifierUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpoint, "error").Inc()
		return fmt.Errorf("post %s: status %d: %w", endpoint, resp.StatusCode, domain.ErrClassifierUnavailable)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpoint, "malformed").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("read %s: %w: %w", endpoint, err, domain.ErrClassifierUnavailable)
		}
		return fmt.Errorf("decode %s: %v: %w", endpoint, err, domain.ErrMalformedResponse)
	}
	return nil
}

// verdict converts one backend result. An escalation without a severity is treated as low.
func (r result) verdict() (verdict.Verdict, error) {
	sev := severity.None
	if r.CombinedSeverity != "" {
		parsed, err := severity.Parse(r.CombinedSeverity)
		if err != nil {
			return verdict.Verdict{}, fmt.Errorf("combined_severity %q: %w", r.CombinedSeverity, domain.ErrMalformedResponse)
		}
		sev = parsed
	}
	if r.ShouldBlur && sev == severity.None {
		sev = severity.Low
	}
	return verdict.Verdict{
		Escalate: r.ShouldBlur,
		Severity: sev,
		Score:    r.Detoxify.Score,
		Scores:   r.Detoxify.Scores,
	}, nil
}
