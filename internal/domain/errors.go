package domain

import (
	"context"
	"errors"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrRetryable         = errors.New("temporary failure, retry the operation")
)

var known = []error{
	ErrValidation,
	ErrNotFound,
	ErrInvalidTransition,
	ErrConflict,
	ErrForbidden,
	ErrRetryable,
}

// IsDomainError reports whether err already carries one of the sentinels above.
func IsDomainError(err error) bool {
	for _, k := range known {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether repeating the whole operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Kind returns a short label for the sentinel err carries, "internal" when
// it carries none. Used for metric labels.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRetryable):
		return "retryable"
	default:
		return "internal"
	}
}
