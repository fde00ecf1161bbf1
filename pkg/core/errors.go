package core

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Error categories from the taxonomy: every core operation classifies its
// failures into one of these kinds rather than returning an opaque error,
// so callers (and the terminal job/case state) can react by category.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("conflict")
	ErrNotFound              = errors.New("not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrTimeout               = errors.New("timeout")
)

// ToHTTPError maps a category error (or a wrapped one) to the status code
// a thin HTTP adapter would expose, using the teacher's HTTP error type.
// Used only by adapters; the core itself never imports net/http response
// plumbing beyond this mapping helper.
func ToHTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDependencyUnavailable):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrTimeout):
		return httperror.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
