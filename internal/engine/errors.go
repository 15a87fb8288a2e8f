package engine

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds spec'd in §7. These are values, not
// exception types: every fallible core operation returns one as a plain
// error, never panics for control flow.
type Kind string

const (
	InvalidConfig       Kind = "invalid_config"
	ResourceExhausted   Kind = "resource_exhausted"
	TransportLost       Kind = "transport_lost"
	ProbeDegraded       Kind = "probe_degraded"
	Timeout             Kind = "timeout"
	Internal            Kind = "internal"
	InsightsUnavailable Kind = "insights_unavailable"
)

// Error wraps a Kind with a message and an optional cause, so callers can
// branch on Kind with errors.As while still getting a wrapped chain.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// newErr builds an *Error, the core's equivalent of the teacher's
// wrapError(kind, err) helper in internal/infrastructure/cache.
func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for anything else — an invariant violation the core didn't
// anticipate is still classified, never left untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
