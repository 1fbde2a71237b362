package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every user-visible service failure wraps exactly one of
// these so handlers can map it to an HTTP status without inspecting text.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
)

type domainError struct {
	kind error
	msg  string
}

func (e *domainError) Error() string { return e.msg }
func (e *domainError) Unwrap() error { return e.kind }

func Unauthorized(format string, args ...any) error {
	return &domainError{kind: ErrUnauthorized, msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &domainError{kind: ErrForbidden, msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &domainError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &domainError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps a service error to a response code. Unknown errors are
// internal failures and must not leak detail to the caller.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
