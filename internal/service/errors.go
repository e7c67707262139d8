package service

import (
	"fmt"

	"parkingnear/internal/domain"

	"github.com/rs/zerolog"
)

// storeErr passes domain errors through unchanged. Anything else is a store
// or driver failure: it is logged with its details and reported to the
// caller as ErrRetryable naming only the operation.
func storeErr(logger *zerolog.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsDomainError(err) {
		return err
	}
	logger.Error().Err(err).Str("op", op).Msg("Store operation failed")
	return fmt.Errorf("%w: %s", domain.ErrRetryable, op)
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}
