// Package errs defines the error-kind taxonomy shared by providers, tools,
// and the orchestrator. Kinds are tagged variants, not an open interface:
// spec behavior depends on classifying an error, not on extending it.
package errs

import "errors"

// Kind identifies the recovery/propagation class of an error.
type Kind string

const (
	KindInvalidParameters Kind = "invalid_parameters"
	KindAuthentication    Kind = "authentication"
	KindPermissionDenied  Kind = "permission_denied"
	KindRateLimit         Kind = "rate_limit"
	KindTransientNetwork  Kind = "transient_network"
	KindTimeout           Kind = "timeout"
	KindIO                Kind = "io"
	KindExecutionFailed   Kind = "execution_failed"
	KindAborted           Kind = "aborted"
	KindInternal          Kind = "internal"
)

// Error is a typed error carrying a Kind for dispatch-by-classification.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Is/As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err is
// not a tagged Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryPolicy maps a Kind to whether it should be retried by the backoff
// wrapper. Only RateLimit, TransientNetwork, and a single Authentication
// refresh-retry (handled separately) are retryable.
func RetryPolicy(kind Kind) bool {
	switch kind {
	case KindRateLimit, KindTransientNetwork:
		return true
	default:
		return false
	}
}
