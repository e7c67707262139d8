package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"parkingnear/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes notifications to a topic exchange with routing key
// notification.<type>.
type AMQPSink struct {
	pub      Publisher
	exchange string
}

func NewAMQPSink(pub Publisher, exchange string) *AMQPSink {
	return &AMQPSink{pub: pub, exchange: exchange}
}

func RoutingKey(notificationType string) string {
	return "notification." + strings.ToLower(notificationType)
}

func (s *AMQPSink) Send(ctx context.Context, _ *models.User, n models.Notification) error {
	body, err := json.Marshal(newMessage(n))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	err = s.pub.PublishWithContext(ctx, s.exchange, RoutingKey(n.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("notification-%d", n.ID),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification %d: %w", n.ID, err)
	}
	return nil
}

// AMQPConnection owns the broker connection behind an AMQPSink.
type AMQPConnection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects and declares the durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPConnection{conn: conn, ch: ch}, nil
}

func (c *AMQPConnection) Channel() *amqp.Channel {
	return c.ch
}

func (c *AMQPConnection) Close() error {
	if c.ch != nil && !c.ch.IsClosed() {
		if err := c.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
