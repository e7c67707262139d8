package models

import "time"

// Notification is an outbox row written together with the mutation it reports.
type Notification struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Message     string     `json:"message"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
