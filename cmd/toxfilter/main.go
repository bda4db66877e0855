package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/config"
	"github.com/kailas-cloud/toxfilter/internal/db"
	dbBadger "github.com/kailas-cloud/toxfilter/internal/db/badger"
	dbRedis "github.com/kailas-cloud/toxfilter/internal/db/redis"
	"github.com/kailas-cloud/toxfilter/internal/lexicon"
	logpkg "github.com/kailas-cloud/toxfilter/internal/logger"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
	"github.com/kailas-cloud/toxfilter/internal/repository/eventlog"
	"github.com/kailas-cloud/toxfilter/internal/repository/verdictcache"
	chiTransport "github.com/kailas-cloud/toxfilter/internal/transport/chi"
	"github.com/kailas-cloud/toxfilter/internal/transport/classifier"
	openaiMod "github.com/kailas-cloud/toxfilter/internal/transport/openai"
	"github.com/kailas-cloud/toxfilter/internal/usecase/composer"
	"github.com/kailas-cloud/toxfilter/internal/usecase/escalation"
	healthuc "github.com/kailas-cloud/toxfilter/internal/usecase/health"
	"github.com/kailas-cloud/toxfilter/internal/usecase/session"
	"github.com/kailas-cloud/toxfilter/internal/version"
)

// remoteClassifier is what every classifier provider implements.
type remoteClassifier interface {
	escalation.Classifier
	composer.TextClassifier
	healthuc.ClassifierChecker
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting toxfilter API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("classifier", cfg.Classifier.Provider),
		zap.String("eventlog_driver", cfg.EventLog.Driver),
	)

	metrics.RegisterDetectionMetrics()
	metrics.RegisterHTTPMetrics()

	lex, err := buildLexicon(cfg.Lexicon)
	if err != nil {
		logger.Fatal("Failed to compile lexicon", zap.Error(err))
	}
	logger.Info("Lexicon compiled",
		zap.Int("terms", lex.Len()),
		zap.Strings("languages", lex.Languages()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event log sink
	store, err := buildStore(cfg.EventLog, logger)
	if err != nil {
		logger.Fatal("Failed to create event log store", zap.Error(err))
	}
	var recorder session.Recorder = eventlog.Discard{}
	if store != nil {
		defer store.Close()
		if err := store.WaitForReady(ctx, time.Duration(cfg.EventLog.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Event log store not ready", zap.Error(err))
		}
		repo := eventlog.New(store, cfg.EventLog.Key, cfg.EventLog.MaxEntries)
		async := eventlog.NewAsync(repo, cfg.EventLog.Buffer, 5*time.Second, logger.Named("eventlog"))
		defer async.Close()
		recorder = async
		logger.Info("Connected to event log store")
	}

	// Sessions, classifier and health
	mgr := session.NewManager(lex, session.Config{
		MaxSessions:         cfg.Sessions.MaxSessions,
		MinEscalationLength: cfg.Escalation.MinTextLength,
		Escalation: escalation.Config{
			BatchSize:     cfg.Escalation.BatchSize,
			Debounce:      cfg.Escalation.Debounce(),
			MinTextLength: cfg.Escalation.MinTextLength,
			Timeout:       cfg.Escalation.Timeout(),
		},
		Composer: composer.Config{
			Delay:         cfg.Composer.Delay(),
			MinLength:     cfg.Composer.MinLength,
			MaxTextLength: cfg.Composer.MaxTextLength,
			Timeout:       cfg.Composer.Timeout(),
		},
	}, logger.Named("session")).WithRecorder(recorder)
	defer mgr.CloseAll()

	// Pass nil interfaces (not typed nil pointers) when a component is disabled.
	var (
		storePinger healthuc.StorePinger
		checker     healthuc.ClassifierChecker
	)
	if store != nil {
		storePinger = store
	}
	if cls := buildClassifier(cfg.Classifier, logger); cls != nil {
		if store != nil && cfg.Classifier.CacheTTLSec > 0 {
			cls = verdictcache.New(cls, store, cfg.Classifier.Provider, cfg.Classifier.CacheTTL(),
				metrics.VerdictCacheTotal, logger.Named("verdictcache"))
			logger.Info("Verdict cache enabled", zap.Duration("ttl", cfg.Classifier.CacheTTL()))
		}
		monitor := healthuc.NewMonitor(cls, cfg.Classifier.HealthTimeout(), logger.Named("health"))
		go monitor.Run(ctx, cfg.Classifier.HealthInterval())
		mgr.WithClassifier(cls, cls).WithAvailability(monitor)
		checker = monitor
	}
	healthSvc := healthuc.New(storePinger, checker)

	server := chiTransport.NewServer(mgr, healthSvc, logger.Named("http"))

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildLexicon compiles the embedded lists plus any configured files.
func buildLexicon(cfg config.LexiconConfig) (*lexicon.Lexicon, error) {
	if !cfg.DisableDefault {
		return lexicon.Default(cfg.Files...)
	}
	sources, err := lexicon.LoadFiles(cfg.Files...)
	if err != nil {
		return nil, err
	}
	return lexicon.Compile(sources...)
}

// buildStore opens the event log backend. Returns nil when the log is disabled.
func buildStore(cfg config.EventLogConfig, logger *zap.Logger) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
			Logger:   logger.Named("redis"),
		})
	case config.DriverBadger:
		return dbBadger.NewStore(dbBadger.Config{
			Path:   cfg.Path,
			Logger: logger.Named("badger"),
		})
	default:
		return nil, nil
	}
}

// buildClassifier returns the configured provider, or nil for lexicon-only operation.
func buildClassifier(cfg config.ClassifierConfig, logger *zap.Logger) remoteClassifier {
	switch cfg.Provider {
	case config.ProviderDetoxify:
		return classifier.New(&classifier.Config{
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout(),
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
			Logger:    logger.Named("classifier"),
		})
	case config.ProviderOpenAI:
		return openaiMod.NewModerator(&openaiMod.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  logger.Named("moderator"),
		})
	default:
		return nil
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request", append(logpkg.Fields(ctx),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)...)
		})
	}
}
