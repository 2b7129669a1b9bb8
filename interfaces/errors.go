package interfaces

import "errors"

// Ledger rejections. They are deterministic: retrying with the same input fails the same way.
var (
	ErrAlreadyRegistered     = errors.New("university already registered")
	ErrMissingUniversityName = errors.New("university name required")
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidStudent        = errors.New("invalid student address")
	ErrMissingStudentName    = errors.New("student name required")
	ErrMissingContentHash    = errors.New("content hash required")
	ErrInvalidCompletionDate = errors.New("invalid completion date")
	ErrDuplicateContent      = errors.New("certificate already exists")
	ErrAlreadyRevoked        = errors.New("certificate already revoked")
	ErrNotIssuer             = errors.New("not the issuing university")
)

// ErrUpstreamUnavailable is returned when the content storage service or the
// ledger execution environment cannot be reached. It is the only retryable kind.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrDegradedResult is returned together with a valid transaction reference when
// a transition was committed but its result (the issued certificate id) could
// not be determined.
var ErrDegradedResult = errors.New("transition committed but result could not be determined")

// IsRetryable reports whether err is worth retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
