package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	logpkg "github.com/kailas-cloud/toxfilter/internal/logger"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest         ErrorCode = "bad_request"
	CodeValidationFailed   ErrorCode = "validation_failed"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeSessionNotFound    ErrorCode = "session_not_found"
	CodeNodeNotFound       ErrorCode = "node_not_found"
	CodeAnnotationNotFound ErrorCode = "annotation_not_found"
	CodeSurfaceNotFound    ErrorCode = "surface_not_found"
	CodeAlreadyRevealed    ErrorCode = "already_revealed"
	CodeTooManySessions    ErrorCode = "too_many_sessions"
	CodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// sentinels lists the errors whose message is safe to show to clients.
var sentinels = []error{
	domain.ErrInvalidInput,
	domain.ErrSessionNotFound,
	domain.ErrNodeNotFound,
	domain.ErrAnnotationNotFound,
	domain.ErrSurfaceNotFound,
	domain.ErrAlreadyRevealed,
	domain.ErrTooManySessions,
}

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound),
		sentinelHandler(domain.ErrNodeNotFound, http.StatusNotFound, CodeNodeNotFound),
		sentinelHandler(domain.ErrAnnotationNotFound, http.StatusNotFound, CodeAnnotationNotFound),
		sentinelHandler(domain.ErrSurfaceNotFound, http.StatusNotFound, CodeSurfaceNotFound),
		sentinelHandler(domain.ErrAlreadyRevealed, http.StatusConflict, CodeAlreadyRevealed),
		sentinelHandler(domain.ErrTooManySessions, http.StatusTooManyRequests, CodeTooManySessions),
	}
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context(), s.logger)
	logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
