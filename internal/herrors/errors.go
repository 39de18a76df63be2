// Package herrors defines the tagged error kinds used throughout the
// pipeline. Components propagate these instead of ad-hoc errors so
// callers can branch on Kind without string matching.
package herrors

import (
	"errors"
	"fmt"
)

// Kind is one of the five error kinds the pipeline distinguishes.
type Kind string

const (
	InvalidArgument     Kind = "InvalidArgument"
	ExternalUnavailable Kind = "ExternalUnavailable"
	Timeout             Kind = "Timeout"
	Parse               Kind = "Parse"
	Internal            Kind = "Internal"
)

// Error wraps a Kind with a message and an optional underlying cause.
type Error struct {
	Kind    Kind
	Field   string // set for InvalidArgument: the offending field name
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind does not implement error, so errors.Is cannot match on it;
// callers branch on a kind with KindOf(err) == Timeout or
// IsKind(err, Timeout).

// New builds a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// InvalidArg builds an InvalidArgument error naming the offending field.
func InvalidArg(field, message string) *Error {
	return &Error{Kind: InvalidArgument, Field: field, Message: message}
}

// KindOf extracts the Kind from err, walking the Unwrap chain. Returns
// Internal if err carries no *Error, and the empty Kind if err is nil.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}

// IsKind reports whether err's Kind (after unwrapping) equals kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
