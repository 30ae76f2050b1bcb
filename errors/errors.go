// Package errors provides coded domain errors shared by the broker packages.
package errors

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeValidation      Code = "VALIDATION"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeConflict        Code = "CONFLICT"
)

// HTTPStatus maps a code to the status code returned by the API.
//
// Invalid state is reported as 404 rather than 409; clients depend on it.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidState, CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	// Fields holds per-field validation messages, keyed by JSON field name.
	Fields map[string][]string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks. They only carry a code.
var (
	ErrValidation      = &Error{Code: CodeValidation}
	ErrInvalidState    = &Error{Code: CodeInvalidState}
	ErrForbidden       = &Error{Code: CodeForbidden}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated}
	ErrConflict        = &Error{Code: CodeConflict}
)

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation creates a validation error with a single message.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// ValidationFields creates a validation error carrying per-field messages.
func ValidationFields(fields map[string][]string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: "invalid fields",
		Fields:  fields,
	}
}

// InvalidState creates an error for an action the current state does not allow.
func InvalidState(message string) *Error {
	return New(CodeInvalidState, message)
}

// Forbidden creates an error for a caller lacking a role or ownership.
func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

// NotFound creates an error for an unknown resource.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Unauthenticated creates an error for missing or bad credentials.
func Unauthenticated(message string) *Error {
	return New(CodeUnauthenticated, message)
}

// CodeOf returns the code of the first domain error in err's chain,
// or CodeUnknown when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// As returns the first domain error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
