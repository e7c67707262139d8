package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventRequestSubmitted = "request_submitted"
	EventRequestDecided   = "request_decided"
	EventRequestParked    = "request_parked"
	EventRequestCompleted = "request_completed"
	EventBillGenerated    = "bill_generated"
	EventBillPaid         = "bill_paid"
	EventPaymentProcessed = "payment_processed"
)

// RequestEventPayload describes the minimal request snapshot for event consumers.
type RequestEventPayload struct {
	RequestID     int64               `json:"request_id"`
	UserID        int64               `json:"user_id"`
	SpaceID       int64               `json:"space_id"`
	ProviderID    int64               `json:"provider_id"`
	VehicleNumber string              `json:"vehicle_number"`
	Status        string              `json:"status"`
	DurationHours decimal.NullDecimal `json:"duration_hours"`
	At            time.Time           `json:"at"`
}

type BillEventPayload struct {
	BillID    int64           `json:"bill_id"`
	RequestID int64           `json:"request_id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

type PaymentEventPayload struct {
	PaymentID     int64           `json:"payment_id"`
	BillID        int64           `json:"bill_id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// and their errors stay with them.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
