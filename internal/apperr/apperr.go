package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a business failure so handlers can map it to a status code.
type Kind int

const (
	// Validation means malformed or missing input.
	Validation Kind = iota
	// NotAuthorized means the principal does not own the resource.
	NotAuthorized
	// NotFound means the referenced entity does not exist.
	NotFound
	// NotActive means the session state precludes the operation.
	NotActive
	// InvalidToken means the rotating proof token failed its check.
	InvalidToken
	// Conflict means a uniqueness or state-machine rule was violated.
	Conflict
)

// Error is the failure type every service in this repo returns for
// business-rule violations. Anything else is treated as an internal error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case Validation, NotActive, InvalidToken:
		return http.StatusBadRequest
	case NotAuthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
