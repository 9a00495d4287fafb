// Package errors provides structured error types for the wallet core.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error so the transport layer can map it to a status
// code without inspecting messages.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindBusinessRule Kind = "business_rule"
	KindConflict     Kind = "conflict"
	KindExternal     Kind = "external"
	KindInternal     Kind = "internal"
)

// Error is the structured error carried across the core. Message is safe
// for external callers; Err holds the internal cause and is never rendered
// to clients.
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

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validationf creates a validation error (malformed or out-of-range input).
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a not-found error (unknown token or transaction id).
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// BusinessRulef creates a business-rule error (token not active, expired,
// already spent or redeemed, amount exceeds token value).
func BusinessRulef(format string, args ...any) *Error {
	return &Error{Kind: KindBusinessRule, Message: fmt.Sprintf(format, args...)}
}

// Conflictf creates a conflict error. Conflicts are normally surfaced
// through the structured conflicts array of a sync result, never thrown
// across the API boundary.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Externalf creates an external-service error (gateway unavailable,
// timeout).
func Externalf(format string, args ...any) *Error {
	return &Error{Kind: KindExternal, Message: fmt.Sprintf(format, args...)}
}

// Internalf creates an internal error (unexpected storage fault).
func Internalf(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return Is(err, KindValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsBusinessRule reports whether err is a business-rule error.
func IsBusinessRule(err error) bool { return Is(err, KindBusinessRule) }

// IsExternal reports whether err is an external-service error.
func IsExternal(err error) bool { return Is(err, KindExternal) }

// Message returns the externally safe message of err. Internal causes and
// non-structured errors are collapsed to a generic message so storage
// details never leak to clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// IsRetryable returns true if the error is likely transient and worth
// retrying. Only external-service failures qualify; business outcomes are
// final.
func IsRetryable(err error) bool {
	return Is(err, KindExternal)
}
