// Package apperr holds the error kinds shared by the core packages and
// mapped to HTTP statuses by the handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInternal        Kind = "INTERNAL"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindNotFound        Kind = "NOT_FOUND"
	KindInvalidInput    Kind = "INVALID_INPUT"
	KindConflict        Kind = "CONFLICT"
)

type Error struct {
	kind    Kind
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Kind() Kind {
	return e.kind
}

// Message is the text that is safe to show to a client.
func (e *Error) Message() string {
	return e.message
}

func (e *Error) Unwrap() error {
	return e.err
}

func New(kind Kind, message string) error {
	return &Error{kind: kind, message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{kind: kind, message: message, err: cause}
}

func Unauthorized(message string) error {
	return New(KindUnauthorized, message)
}

func NotFound(message string) error {
	return New(KindNotFound, message)
}

func InvalidInput(message string) error {
	return New(KindInvalidInput, message)
}

func Conflict(message string) error {
	return New(KindConflict, message)
}

func Internal(message string, cause error) error {
	return Wrap(KindInternal, message, cause)
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from this package.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}

	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage hides the details of internal failures.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.kind != KindInternal {
		return appErr.message
	}

	return "Internal server error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
