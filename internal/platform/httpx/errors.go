// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrUnprocessable = errors.New("unprocessable")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Only classified errors expose their message; everything else is a 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnprocessable):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type classified struct {
	kind error
	err  error
}

func (c classified) Error() string { return c.err.Error() }

func (c classified) Unwrap() []error { return []error{c.kind, c.err} }

// Wrap tags err with kind while keeping the original message.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return classified{kind: kind, err: err}
}
