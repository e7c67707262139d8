package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parkingnear/internal/domain"
	"parkingnear/internal/metrics"
	"parkingnear/internal/models"
	"parkingnear/internal/notify"

	"github.com/rs/zerolog"
)

// DeadLetterQueue keeps notifications that exhausted their retries.
type DeadLetterQueue interface {
	Push(ctx context.Context, n models.Notification) error
}

// NotificationWorker drains the notifications outbox into a sink.
type NotificationWorker struct {
	store        domain.NotificationQueue
	sink         notify.Sink
	deadLetters  DeadLetterQueue
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
	now          func() time.Time
}

// NewNotificationWorker builds a worker with sane defaults.
func NewNotificationWorker(store domain.NotificationQueue, sink notify.Sink, retry RetryPolicy, logger *zerolog.Logger) *NotificationWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 10 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotificationWorker{
		store:        store,
		sink:         sink,
		retryPolicy:  retry,
		pollInterval: 5 * time.Second,
		batchSize:    models.NotificationBatchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// SetDeadLetters enables the dead-letter list. Without it failed
// notifications are only marked in the outbox.
func (w *NotificationWorker) SetDeadLetters(q DeadLetterQueue) {
	w.deadLetters = q
}

func (w *NotificationWorker) SetPolling(interval time.Duration, batchSize int) {
	if interval > 0 {
		w.pollInterval = interval
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
}

// Start launches main loop; stops when ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	for {
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to fetch pending notifications")
		}
		// полная пачка: сразу берем следующую
		if err == nil && n == w.batchSize {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessBatch delivers one batch of due notifications and returns how many
// were attempted.
func (w *NotificationWorker) ProcessBatch(ctx context.Context) (int, error) {
	list, err := w.store.GetPendingNotifications(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range list {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.deliver(ctx, &list[i])
	}
	return len(list), nil
}

func (w *NotificationWorker) deliver(ctx context.Context, n *models.Notification) {
	user, err := w.store.GetUserByID(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.fail(ctx, n, fmt.Errorf("recipient %d: %w", n.UserID, err))
			return
		}
		w.retryOrFail(ctx, n, err)
		return
	}

	if err := w.sink.Send(ctx, user, *n); err != nil {
		w.retryOrFail(ctx, n, err)
		return
	}

	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationSent, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to mark notification sent")
		return
	}
	metrics.IncNotification(models.NotificationSent)
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, n *models.Notification, cause error) {
	attempt := n.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.fail(ctx, n, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt)).UTC()
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to schedule notification retry")
		return
	}
	metrics.IncNotification(models.NotificationRetry)
	w.logger.Warn().Err(cause).
		Int64("notification_id", n.ID).
		Int("attempt", attempt).
		Time("next_retry_at", next).
		Msg("Notification delivery failed, will retry")
}

func (w *NotificationWorker) fail(ctx context.Context, n *models.Notification, cause error) {
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to mark notification failed")
	}
	metrics.IncNotification(models.NotificationFailed)
	w.logger.Error().Err(cause).Int64("notification_id", n.ID).Msg("Notification delivery abandoned")

	if w.deadLetters == nil {
		return
	}
	msg := cause.Error()
	n.LastError = &msg
	if err := w.deadLetters.Push(ctx, *n); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Dead letter push failed")
	}
}
