// Package apperrors holds the error kinds the HTTP layer is allowed to
// translate into responses. Everything else stays an internal error.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindInternal — всё, что не классифицировано явно.
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindPrecondition
	KindAuthentication
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition"
	case KindAuthentication:
		return "authentication"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// Message returns the caller-safe text, without the wrapped cause.
func (e *Error) Message() string { return e.msg }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

func Preconditionf(format string, args ...any) *Error {
	return newf(KindPrecondition, format, args...)
}

func Authenticationf(format string, args ...any) *Error {
	return newf(KindAuthentication, format, args...)
}

// Dependency wraps an external-collaborator failure. Safe to retry with
// backoff by the caller.
func Dependency(err error, msg string) *Error {
	return &Error{kind: KindDependency, msg: msg, err: err}
}

// KindOf classifies an arbitrary error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// PublicMessage returns text safe to ship to a client. Internal errors
// collapse to a generic message so nothing about storage or upstreams
// leaks through the API.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "internal error"
}
