// Package werrors defines the engine-wide error taxonomy. Every public
// engine operation returns errors of this shape so callers can branch on
// Kind without string-matching messages, and so messages never leak raw
// key material.
package werrors

import (
	"errors"
	"fmt"
)

// Kind discriminates the category of failure. It is not a type name —
// callers switch on it, they don't type-assert the concrete error.
type Kind int

const (
	// Unknown is the zero value; never returned by engine code on purpose.
	Unknown Kind = iota
	NotFound
	InvalidInput
	ProtocolError
	IO
	Configuration
	Concurrency
	Cryptography
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case ProtocolError:
		return "protocol_error"
	case IO:
		return "io"
	case Configuration:
		return "configuration"
	case Concurrency:
		return "concurrency"
	case Cryptography:
		return "cryptography"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned from engine operations.
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

// New builds a new Error of the given kind with a formatted message. It
// never interpolates raw secret key material — callers must redact before
// calling this.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Unknown if err isn't a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Retryable reports whether the error's kind is one the event pipeline
// should retry: ProtocolError and IO are retryable at publish time;
// Cryptography/InvalidInput/NotFound on inbound events are not).
func Retryable(err error) bool {
	switch KindOf(err) {
	case ProtocolError, IO:
		return true
	default:
		return false
	}
}
