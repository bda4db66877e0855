// Package openai adapts the OpenAI moderation API to the classifier contracts.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/verdict"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
)

const (
	provider          = "openai"
	endpoint          = "moderations"
	defaultModel      = "omni-moderation-latest"
	defaultConcurrent = 4
)

// Moderation categories folded into each verdict category.
var (
	toxicityCategories = []string{"harassment", "hate", "harassment/threatening", "hate/threatening"}
	threatCategories   = []string{"harassment/threatening", "hate/threatening", "violence"}
	identityCategories = []string{"hate", "hate/threatening"}
)

// Moderator classifies text through the moderation endpoint of an OpenAI-compatible API.
type Moderator struct {
	client     *openai.Client
	model      string
	concurrent int
	logger     *zap.Logger
}

// Config holds the moderation provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Concurrent caps parallel requests per batch; the endpoint takes one text per call here.
	Concurrent int
	Logger     *zap.Logger
}

// NewModerator creates an OpenAI-compatible moderation classifier.
func NewModerator(cfg *Config) *Moderator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	concurrent := cfg.Concurrent
	if concurrent <= 0 {
		concurrent = defaultConcurrent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Moderator{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		concurrent: concurrent,
		logger:     logger,
	}
}

// ClassifyText implements composer.TextClassifier.
func (m *Moderator) ClassifyText(ctx context.Context, text string) (verdict.Verdict, error) {
	start := time.Now()

	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{Input: text, Model: m.model})

	duration := time.Since(start)

	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpoint, "error").Inc()
		return verdict.Verdict{}, parseAPIError(err)
	}
	if len(resp.Results) == 0 {
		metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpoint, "malformed").Inc()
		return verdict.Verdict{}, fmt.Errorf("empty moderation response: %w", domain.ErrMalformedResponse)
	}

	scores, err := categoryScores(resp.Results[0].CategoryScores)
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpoint, "malformed").Inc()
		return verdict.Verdict{}, err
	}

	metrics.ClassifierRequestsTotal.WithLabelValues(provider, endpoint, "success").Inc()
	metrics.ClassifierRequestDuration.WithLabelValues(provider, endpoint).Observe(duration.Seconds())

	return verdict.FromScores(fold(scores)), nil
}

// ClassifyBatch implements escalation.Classifier. Any failed text fails the batch.
func (m *Moderator) ClassifyBatch(ctx context.Context, texts []string) ([]verdict.Verdict, error) {
	out := make([]verdict.Verdict, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrent)
	for i, text := range texts {
		g.Go(func() error {
			v, err := m.ClassifyText(ctx, text)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Debug("Moderation batch failed", zap.Int("texts", len(texts)), zap.Error(err))
		return nil, err
	}
	return out, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (m *Moderator) HealthCheck(ctx context.Context) error {
	if _, err := m.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w: %w", err, domain.ErrClassifierUnavailable)
	}
	return nil
}

// categoryScores flattens the typed score struct into a map keyed by API category name.
func categoryScores(s openai.ResultCategoryScores) (map[string]float64, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode category scores: %w", domain.ErrMalformedResponse)
	}
	scores := make(map[string]float64)
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("decode category scores: %w", domain.ErrMalformedResponse)
	}
	return scores, nil
}

// fold maps moderation categories onto the detoxify categories the severity thresholds use.
func fold(scores map[string]float64) map[string]float64 {
	return map[string]float64{
		verdict.CategoryToxicity:       maxOf(scores, toxicityCategories),
		verdict.CategoryThreat:         maxOf(scores, threatCategories),
		verdict.CategoryIdentityAttack: maxOf(scores, identityCategories),
	}
}

func maxOf(scores map[string]float64, keys []string) float64 {
	var m float64
	for _, k := range keys {
		if v := scores[k]; v > m {
			m = v
		}
	}
	return m
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrClassifierUnavailable so callers drop the request.
func parseAPIError(err error) error {
	wrap := domain.ErrClassifierUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("moderation API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("moderation API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("moderation request failed: %v: %w", err, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
