package toxfilter

import "github.com/kailas-cloud/toxfilter/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidLexicon        = domain.ErrInvalidLexicon
	ErrClassifierUnavailable = domain.ErrClassifierUnavailable
	ErrMalformedResponse     = domain.ErrMalformedResponse
	ErrInvalidInput          = domain.ErrInvalidInput
	ErrClosed                = errClosed
)
