// Package errkind defines the service-wide failure taxonomy. Handlers map
// these onto HTTP statuses; callers pick retry behavior from them.
package errkind

import (
	"errors"
	"net/http"
)

var (
	// ErrPermissionDenied: membership or policy violation. Not retriable
	// without a membership change.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrValidation: malformed payload. Fix and resend.
	ErrValidation = errors.New("invalid payload")
	// ErrTransient: network or availability failure. Retriable.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound: referenced chat or object is absent. Terminal for the
	// operation.
	ErrNotFound = errors.New("not found")
)

// PermissionDenied wraps err so it classifies as a permission failure.
func PermissionDenied(err error) error {
	return wrap(ErrPermissionDenied, err)
}

// Validation wraps err so it classifies as a validation failure.
func Validation(err error) error {
	return wrap(ErrValidation, err)
}

// Transient wraps err so it classifies as a transient failure.
func Transient(err error) error {
	return wrap(ErrTransient, err)
}

// NotFound wraps err so it classifies as a missing-resource failure.
func NotFound(err error) error {
	return wrap(ErrNotFound, err)
}

func wrap(kind, err error) error {
	if err == nil {
		return kind
	}
	return &kindError{kind: kind, err: err}
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

// HTTPStatus maps an error's kind to a response status. Unclassified errors
// land on 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
