package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"parkingnear/internal/models"

	"github.com/rs/zerolog"
)

// ErrPrimaryFailed marks a notification that reached only the fallback sink.
var ErrPrimaryFailed = errors.New("primary notification sink failed")

// FailoverSink sends through primary. When primary fails the notification is
// copied to fallback and the failure is still returned, so the outbox keeps
// the row for a retry. The up/down state only drives logging.
type FailoverSink struct {
	primary  Sink
	fallback Sink
	logger   *zerolog.Logger
	isDown   atomic.Bool
}

func NewFailoverSink(primary, fallback Sink, logger *zerolog.Logger) *FailoverSink {
	return &FailoverSink{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FailoverSink) Send(ctx context.Context, user *models.User, n models.Notification) error {
	err := s.primary.Send(ctx, user, n)
	if err == nil {
		if s.isDown.Swap(false) {
			s.logger.Info().Msg("Primary notification sink recovered")
		}
		return nil
	}

	if !s.isDown.Swap(true) {
		s.logger.Error().Err(err).Msg("Primary notification sink failed, copying to fallback")
	}

	failed := fmt.Errorf("%w: notification %d: %w", ErrPrimaryFailed, n.ID, err)
	if fbErr := s.fallback.Send(ctx, user, n); fbErr != nil {
		return errors.Join(failed, fmt.Errorf("fallback: %w", fbErr))
	}
	return failed
}
