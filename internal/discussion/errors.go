package discussion

import (
	"errors"
	"fmt"
)

// --- Error taxonomy ---
//
// Validation and conflict errors are locally recoverable: the caller can
// retry with corrected input or simply retry later. Generation and analysis
// errors are terminal for the session (it moves to failed) but not for the
// process: a new session can always be started.

// Kind classifies an engine error for callers that need to branch on it.
type Kind string

const (
	KindValidation Kind = "validation" // malformed input, unknown question IDs
	KindGeneration Kind = "generation" // question generator failed after retry
	KindAnalysis   Kind = "analysis"   // completeness analyzer failed after retry
	KindConflict   Kind = "conflict"   // concurrent mutation attempt
	KindNotFound   Kind = "not_found"  // unknown session reference
	KindState      Kind = "state"      // operation invalid for the current status
)

// Error is the engine's typed error. It wraps an optional cause so callers
// can use errors.Is/errors.As on the chain.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an engine Error. Exposed for collaborators that share
// the taxonomy (the plan compiler's preconditions).
func NewError(kind Kind, format string, args ...any) error {
	return newError(kind, format, args...)
}

// newError builds an Error with a formatted message and no cause.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// wrapError builds an Error around a cause.
func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// HasKind reports whether err (or anything it wraps) is an engine Error of
// the given kind.
func HasKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return HasKind(err, KindValidation) }

// IsConflict reports whether err is a concurrent-mutation conflict.
func IsConflict(err error) bool { return HasKind(err, KindConflict) }

// IsNotFound reports whether err refers to an unknown session.
func IsNotFound(err error) bool { return HasKind(err, KindNotFound) }

// IsState reports whether err is a state-precondition failure.
func IsState(err error) bool { return HasKind(err, KindState) }
