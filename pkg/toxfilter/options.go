package toxfilter

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Classifier is a remote toxicity classifier. ClassifyBatch must return one
// verdict per text, in order.
type Classifier interface {
	ClassifyBatch(ctx context.Context, texts []string) ([]Verdict, error)
	ClassifyText(ctx context.Context, text string) (Verdict, error)
}

// Recorder receives detection events. Record must not block.
type Recorder interface {
	Record(e Event)
}

// Option configures the Filter.
type Option interface {
	apply(*filterConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*filterConfig)

func (f optionFunc) apply(c *filterConfig) { f(c) }

type filterConfig struct {
	classifierURL     string
	classifierTimeout time.Duration
	classifier        Classifier

	lexiconSources   []LexiconSource
	noDefaultLexicon bool

	recorder      Recorder
	batchSize     int
	minTextLength int
	domain        string

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithClassifierURL uses a detoxify-compatible backend at baseURL.
func WithClassifierURL(baseURL string) Option {
	return optionFunc(func(c *filterConfig) {
		c.classifierURL = baseURL
	})
}

// WithClassifierTimeout bounds each classifier request. Default: 15s.
func WithClassifierTimeout(d time.Duration) Option {
	return optionFunc(func(c *filterConfig) {
		c.classifierTimeout = d
	})
}

// WithClassifier uses a custom classifier. Takes precedence over WithClassifierURL.
func WithClassifier(cl Classifier) Option {
	return optionFunc(func(c *filterConfig) {
		c.classifier = cl
	})
}

// WithLexiconSources adds term lists to the embedded ones.
func WithLexiconSources(sources ...LexiconSource) Option {
	return optionFunc(func(c *filterConfig) {
		c.lexiconSources = append(c.lexiconSources, sources...)
	})
}

// WithoutDefaultLexicon drops the embedded term lists; only WithLexiconSources apply.
func WithoutDefaultLexicon() Option {
	return optionFunc(func(c *filterConfig) {
		c.noDefaultLexicon = true
	})
}

// WithRecorder receives every detection event.
func WithRecorder(r Recorder) Option {
	return optionFunc(func(c *filterConfig) {
		c.recorder = r
	})
}

// WithBatchSize sets how many texts go to the classifier per request. Default: 12.
func WithBatchSize(n int) Option {
	return optionFunc(func(c *filterConfig) {
		c.batchSize = n
	})
}

// WithMinTextLength sets the shortest text, in runes, sent to the classifier
// without a lexicon hit. Default: 20.
func WithMinTextLength(n int) Option {
	return optionFunc(func(c *filterConfig) {
		c.minTextLength = n
	})
}

// WithDomain tags recorded events with a site name.
func WithDomain(domain string) Option {
	return optionFunc(func(c *filterConfig) {
		c.domain = domain
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *filterConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *filterConfig) {
		c.metricsReg = reg
	})
}
