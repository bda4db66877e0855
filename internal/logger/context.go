package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type ctxKey struct{}

// scope is the request-scoped logger plus fields added by handlers.
type scope struct {
	logger *zap.Logger

	mu     sync.Mutex
	fields []zap.Field
}

// ContextWithLogger starts a request scope around logger.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &scope{logger: logger})
}

// FromContext returns the request-scoped logger with every added field.
// Without a scope it returns fallback, or a no-op logger when fallback is nil.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	sc, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		if fallback == nil {
			return zap.NewNop()
		}
		return fallback
	}
	return sc.logger.With(Fields(ctx)...)
}

// AddFields attaches fields to the current request scope. They appear on
// later FromContext loggers and on the canonical request line. No-op without a scope.
func AddFields(ctx context.Context, fields ...zap.Field) {
	sc, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		return
	}
	sc.mu.Lock()
	sc.fields = append(sc.fields, fields...)
	sc.mu.Unlock()
}

// Fields returns a copy of the fields added to the current request scope.
func Fields(ctx context.Context) []zap.Field {
	sc, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		return nil
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]zap.Field(nil), sc.fields...)
}
