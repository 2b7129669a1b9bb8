package handlers

import (
	"errors"
	"net/http"

	"github.com/ruteri/certificate-registry/interfaces"
)

// RequestError carries an explicit HTTP status for errors raised while
// parsing a request.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(err error) error {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
}

// statusFor maps an error to the HTTP status it is answered with.
func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrAlreadyRegistered),
		errors.Is(err, interfaces.ErrDuplicateContent),
		errors.Is(err, interfaces.ErrAlreadyRevoked):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrNotFound),
		errors.Is(err, interfaces.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrUnauthorized),
		errors.Is(err, interfaces.ErrNotIssuer):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrInvalidStudent),
		errors.Is(err, interfaces.ErrMissingStudentName),
		errors.Is(err, interfaces.ErrMissingContentHash),
		errors.Is(err, interfaces.ErrMissingUniversityName),
		errors.Is(err, interfaces.ErrInvalidCompletionDate):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
