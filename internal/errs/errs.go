// Package errs defines the error kinds surfaced by the API and tool layer.
//
// Components wrap failures in a kinded Error; the HTTP and tool surfaces map
// the kind to a status code and a suggested action for the calling agent.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the outward-facing surfaces.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindDuplicate          Kind = "duplicate"
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindUnavailable        Kind = "unavailable"
	KindRuntime            Kind = "runtime"
	KindUnauthorized       Kind = "unauthorized"
)

// Error is a kinded error with an optional wrapped cause.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kinded error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a kinded error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err. Unkinded non-nil errors report KindRuntime;
// nil reports the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRuntime
}

// HTTPStatus maps the kind to an HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindDuplicate:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// SuggestedAction returns the recovery hint surfaced to calling agents.
func (k Kind) SuggestedAction() string {
	switch k {
	case KindUnavailable:
		return "retry"
	case KindInvalidArgument, KindDuplicate, KindPreconditionFailed, KindNotFound:
		return "use_different_input"
	default:
		return "contact_support"
	}
}
