package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLexicon signals a malformed or empty lexicon. Fatal at startup.
	ErrInvalidLexicon = errors.New("invalid lexicon")
	// ErrClassifierUnavailable signals a network failure, timeout or non-2xx reply from the classifier.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrMalformedResponse signals a classifier reply that cannot be applied.
	ErrMalformedResponse = errors.New("malformed classifier response")
	// ErrUnitDetached signals that a scan unit left the document before it was annotated.
	ErrUnitDetached = errors.New("scan unit detached")
	// ErrAnnotationNotFound signals a missing annotation.
	ErrAnnotationNotFound = errors.New("annotation not found")
	// ErrAlreadyRevealed signals a second reveal of the same annotation.
	ErrAlreadyRevealed = errors.New("annotation already revealed")
	// ErrNodeNotFound signals a missing document node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrSessionNotFound signals a missing session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSurfaceNotFound signals a missing editable surface.
	ErrSurfaceNotFound = errors.New("surface not found")
	// ErrTooManySessions signals that the session cap is reached.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrInvalidInput signals a request that fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// LexiconEntryError wraps ErrInvalidLexicon with the offending entry.
type LexiconEntryError struct {
	Language string
	Term     string
	Reason   string
}

func (e *LexiconEntryError) Error() string {
	return fmt.Sprintf("%s: %s entry %q: %s", ErrInvalidLexicon.Error(), e.Language, e.Term, e.Reason)
}

func (e *LexiconEntryError) Unwrap() error { return ErrInvalidLexicon }

// NewLexiconEntryError creates an invalid entry error.
func NewLexiconEntryError(language, term, reason string) error {
	return &LexiconEntryError{Language: language, Term: term, Reason: reason}
}
