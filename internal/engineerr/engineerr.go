// Package engineerr defines the registration engine's error kinds (§7). The
// HTTP status mapping for them is RespondEngineError in internal/http/handlers.
package engineerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthorized       Kind = "Unauthorized"
	KindForbidden          Kind = "Forbidden"
	KindNotFound           Kind = "NotFound"
	KindInvalidState       Kind = "InvalidState"
	KindDuplicate          Kind = "Duplicate"
	KindCapacityFull       Kind = "CapacityFull"
	KindQuotaExceeded      Kind = "QuotaExceeded"
	KindRoleHasRegistrants Kind = "RoleHasRegistrants"
	KindCapacityBelowUsage Kind = "CapacityBelowUsage"
	KindConflict           Kind = "Conflict"
	KindUnavailable        Kind = "Unavailable"
	KindValidation         Kind = "Validation"
)

// Error is a classified engine failure. Handlers map Kind to an HTTP status
// via RespondEngineError - never by string-matching Error().
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf classifies err. An error not produced by this package (an
// unclassified engine bug, or a raw infra error) returns the zero Kind,
// which RespondEngineError maps to 500 - an unclassified failure should
// surface as a server error, not be guessed into some 4xx.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or something it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
