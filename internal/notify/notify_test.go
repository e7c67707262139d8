package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"parkingnear/internal/models"

	"github.com/alicebob/miniredis/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testNotification() models.Notification {
	return models.Notification{
		ID:        11,
		UserID:    2,
		Type:      models.NotificationTypeBill,
		Message:   "Bill #4 for 120.00 is due",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Send(ctx context.Context, user *models.User, n models.Notification) error {
	return m.Called(ctx, user, n).Error(0)
}

func TestRedisSink(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	ctx := context.Background()

	sub := client.Subscribe(ctx, ChannelFor(2))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	sink := NewRedisSink(client)
	require.NoError(t, sink.Send(ctx, &models.User{ID: 2}, testNotification()))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got Message
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, models.NotificationTypeBill, got.Type)
	assert.Equal(t, "Bill #4 for 120.00 is due", got.Text)

	t.Run("NilClient", func(t *testing.T) {
		err := NewRedisSink(nil).Send(ctx, &models.User{ID: 2}, testNotification())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestDeadLetters(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	ctx := context.Background()

	dl := NewDeadLetters(client)
	first := testNotification()
	second := testNotification()
	second.ID = 12

	require.NoError(t, dl.Push(ctx, first))
	require.NoError(t, dl.Push(ctx, second))

	got, err := dl.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(12), got[0].ID)
	assert.Equal(t, int64(11), got[1].ID)

	s.SetError("READONLY")
	assert.Error(t, dl.Push(ctx, first))
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return p.err
}

func TestAMQPSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSink(pub, "parkingnear.notifications")

	require.NoError(t, sink.Send(context.Background(), &models.User{ID: 2}, testNotification()))
	assert.Equal(t, "parkingnear.notifications", pub.exchange)
	assert.Equal(t, "notification.bill", pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)

	var got Message
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	assert.Equal(t, int64(2), got.UserID)

	pub.err = errors.New("channel closed")
	assert.Error(t, sink.Send(context.Background(), &models.User{ID: 2}, testNotification()))
}

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramSink(t *testing.T) {
	sender := new(mockTelegramSender)
	logger := zerolog.Nop()
	sink := NewTelegramSink(sender, &logger)
	ctx := context.Background()

	t.Run("SendsToLinkedChat", func(t *testing.T) {
		chatID := int64(123)
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ChatID == 123 && msg.ParseMode == models.ParseModeMarkdown
		})).Return(tgbotapi.Message{}, nil).Once()

		err := sink.Send(ctx, &models.User{ID: 2, TelegramChatID: &chatID}, testNotification())
		assert.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("SkipsUnlinkedUser", func(t *testing.T) {
		assert.NoError(t, sink.Send(ctx, &models.User{ID: 3}, testNotification()))
		sender.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("SendError", func(t *testing.T) {
		chatID := int64(456)
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("Forbidden: bot was blocked")).Once()

		err := sink.Send(ctx, &models.User{ID: 4, TelegramChatID: &chatID}, testNotification())
		assert.Error(t, err)
	})
}

func TestMultiSink(t *testing.T) {
	ctx := context.Background()
	user := &models.User{ID: 2}
	n := testNotification()

	ok := new(mockSink)
	bad := new(mockSink)
	ok.On("Send", ctx, user, n).Return(nil)
	bad.On("Send", ctx, user, n).Return(errors.New("down"))

	assert.NoError(t, NewMultiSink(ok).Send(ctx, user, n))
	assert.Error(t, NewMultiSink(ok, bad).Send(ctx, user, n))
	ok.AssertNumberOfCalls(t, "Send", 2)
}

func TestFailoverSink(t *testing.T) {
	primary := new(mockSink)
	fallback := new(mockSink)
	logger := zerolog.Nop()
	sink := NewFailoverSink(primary, fallback, &logger)

	ctx := context.Background()
	user := &models.User{ID: 2}
	n := testNotification()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Send", ctx, user, n).Return(nil).Once()
		assert.NoError(t, sink.Send(ctx, user, n))
		primary.AssertExpectations(t)
		fallback.AssertNotCalled(t, "Send", ctx, user, n)
	})

	t.Run("PrimaryFailStillReported", func(t *testing.T) {
		boom := errors.New("connection refused")
		primary.On("Send", ctx, user, n).Return(boom).Once()
		fallback.On("Send", ctx, user, n).Return(nil).Once()

		err := sink.Send(ctx, user, n)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPrimaryFailed)
		assert.ErrorIs(t, err, boom)
		assert.True(t, sink.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("PrimaryTriedAgainWhileDown", func(t *testing.T) {
		primary.On("Send", ctx, user, n).Return(errors.New("still down")).Once()
		fallback.On("Send", ctx, user, n).Return(nil).Once()

		assert.ErrorIs(t, sink.Send(ctx, user, n), ErrPrimaryFailed)
		primary.AssertNumberOfCalls(t, "Send", 3)
	})

	t.Run("BothFail", func(t *testing.T) {
		fbErr := errors.New("disk full")
		primary.On("Send", ctx, user, n).Return(errors.New("down")).Once()
		fallback.On("Send", ctx, user, n).Return(fbErr).Once()

		err := sink.Send(ctx, user, n)
		assert.ErrorIs(t, err, ErrPrimaryFailed)
		assert.ErrorIs(t, err, fbErr)
	})

	t.Run("Recovery", func(t *testing.T) {
		primary.On("Send", ctx, user, n).Return(nil).Once()

		assert.NoError(t, sink.Send(ctx, user, n))
		assert.False(t, sink.isDown.Load())
		primary.AssertExpectations(t)
	})
}

func TestLogSink(t *testing.T) {
	logger := zerolog.Nop()
	assert.NoError(t, NewLogSink(&logger).Send(context.Background(), &models.User{ID: 1}, testNotification()))
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "notification.request", RoutingKey(models.NotificationTypeRequest))
	assert.Equal(t, "notification.payment", RoutingKey(models.NotificationTypePayment))
}
