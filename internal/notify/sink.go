package notify

import (
	"context"
	"errors"
	"time"

	"parkingnear/internal/models"

	"github.com/rs/zerolog"
)

// Sink delivers one notification to one recipient. A nil error means the
// notification may be marked sent.
type Sink interface {
	Send(ctx context.Context, user *models.User, n models.Notification) error
}

// Message is the wire form used by the broker sinks.
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func newMessage(n models.Notification) Message {
	return Message{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Text:      n.Message,
		CreatedAt: n.CreatedAt,
	}
}

// LogSink writes notifications to the application log.
type LogSink struct {
	logger *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, user *models.User, n models.Notification) error {
	s.logger.Info().
		Int64("notification_id", n.ID).
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Str("type", n.Type).
		Msg(n.Message)
	return nil
}

// MultiSink fans a notification out to every sink. It fails if any sink
// fails, so a retry re-delivers to all of them.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Send(ctx context.Context, user *models.User, n models.Notification) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, user, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
