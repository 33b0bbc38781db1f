// Package apperr defines the service-facing error taxonomy and its mapping
// onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error the way the core services report failures,
// independent of transport.
type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	InvalidArgument
	Cancelled
	NotFound
	ResourceExhausted
	Unimplemented
)

func (k Kind) httpStatus() int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case InvalidArgument:
		return http.StatusBadRequest
	case Cancelled:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case ResourceExhausted:
		return http.StatusTooManyRequests
	case Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed application error. Message is safe to return to callers;
// Cause is logged server-side only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts an *Error from err, or reports ok=false.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus returns the status code err should be reported with, defaulting
// to 500 for errors that are not a *Error.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok {
		return e.Kind.httpStatus()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to surface to a caller.
func PublicMessage(err error) string {
	if e, ok := As(err); ok {
		return e.Message
	}
	return "internal error"
}
