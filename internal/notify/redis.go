package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"parkingnear/internal/config"
	"parkingnear/internal/models"

	"github.com/redis/go-redis/v9"
)

const deadLetterKey = "notifications:dead"

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisSink publishes each notification on the recipient's channel,
// notifications:user:<id>.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func ChannelFor(userID int64) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

func (s *RedisSink) Send(ctx context.Context, user *models.User, n models.Notification) error {
	if s.client == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(newMessage(n))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, ChannelFor(user.ID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification %d: %w", n.ID, err)
	}
	return nil
}

// DeadLetters keeps notifications that ran out of retries in a redis list.
type DeadLetters struct {
	client *redis.Client
}

func NewDeadLetters(client *redis.Client) *DeadLetters {
	return &DeadLetters{client: client}
}

func (d *DeadLetters) Push(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := d.client.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter %d: %w", n.ID, err)
	}
	return nil
}

// List returns up to limit dead letters, newest first.
func (d *DeadLetters) List(ctx context.Context, limit int64) ([]models.Notification, error) {
	vals, err := d.client.LRange(ctx, deadLetterKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	out := make([]models.Notification, 0, len(vals))
	for _, v := range vals {
		var n models.Notification
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
