package service

import (
	"context"
	"errors"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/models"

	"github.com/rs/zerolog"
)

// CurrentBookingSource is the part of RequestService the watcher polls.
type CurrentBookingSource interface {
	CurrentBooking(ctx context.Context, userID int64) (*models.RequestView, error)
}

// StatusWatcher polls a user's current booking at a fixed interval. Every
// poll reads fresh state; nothing is cached between polls.
type StatusWatcher struct {
	source   CurrentBookingSource
	interval time.Duration
	logger   *zerolog.Logger
}

func NewStatusWatcher(source CurrentBookingSource, interval time.Duration, logger *zerolog.Logger) *StatusWatcher {
	if interval <= 0 {
		interval = models.DefaultWatchInterval * time.Second
	}
	return &StatusWatcher{
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

type snapshotKey struct {
	id     int64
	status string
}

// Watch calls onChange with the current booking whenever its id or status
// differs from the previous poll. A nil view means the user has no open
// booking any more. Watch blocks until ctx is canceled.
func (w *StatusWatcher) Watch(ctx context.Context, userID int64, onChange func(view *models.RequestView)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last snapshotKey
	poll := func() {
		view, err := w.source.CurrentBooking(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn().Err(err).Int64("user_id", userID).Msg("Status poll failed")
			return
		}

		var key snapshotKey
		if view != nil {
			key = snapshotKey{id: view.ID, status: view.Status}
		}
		if key == last {
			return
		}
		last = key
		onChange(view)
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
