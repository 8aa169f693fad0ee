// Package apperr defines the error taxonomy shared by every component so
// callers can branch on kind rather than string-matching messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping purposes.
type Kind string

const (
	InputInvalid        Kind = "input_invalid"
	NotFound             Kind = "not_found"
	Conflict             Kind = "conflict"
	RemoteTransient       Kind = "remote_transient"
	RemoteFatal           Kind = "remote_fatal"
	EmbedderUnavailable   Kind = "embedder_unavailable"
	StoreUnavailable      Kind = "store_unavailable"
	Cancelled             Kind = "cancelled"
	Internal              Kind = "internal"
)

// Error wraps a Kind, a user-facing message, and an optional cause.
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

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to Internal if err is not
// (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
