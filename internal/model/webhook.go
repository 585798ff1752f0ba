// internal/model/webhook.go
package model

import (
	"encoding/json"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryRetrying DeliveryStatus = "retrying"
)

type WebhookSubscription struct {
	ID        string            `db:"id" json:"id"`
	URL       string            `db:"url" json:"url"`
	Secret    string            `db:"secret" json:"-"`
	Events    []string          `db:"events" json:"events"`
	Headers   map[string]string `db:"headers" json:"headers"`
	IsActive  bool              `db:"is_active" json:"is_active"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// Subscribes reports whether the subscription lists the event.
func (w *WebhookSubscription) Subscribes(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookDelivery tracks one payload through its attempts. It doubles as the
// retry queue: the scheduler picks rows whose NextAttemptAt has passed.
type WebhookDelivery struct {
	ID             string          `db:"id" json:"id"`
	WebhookID      string          `db:"webhook_id" json:"webhook_id"`
	Event          string          `db:"event" json:"event"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	Status         DeliveryStatus  `db:"status" json:"status"`
	Attempts       int             `db:"attempts" json:"attempts"`
	NextAttemptAt  *time.Time      `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	LastStatusCode int             `db:"last_status_code" json:"last_status_code"`
	LastError      string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// DeliveryAttempt is an append-only log row, one per HTTP try.
type DeliveryAttempt struct {
	ID             int64           `db:"id" json:"id"`
	DeliveryID     string          `db:"delivery_id" json:"delivery_id"`
	WebhookID      string          `db:"webhook_id" json:"webhook_id"`
	Event          string          `db:"event" json:"event"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	Attempt        int             `db:"attempt" json:"attempt"`
	ResponseStatus int             `db:"response_status" json:"response_status"`
	ResponseBody   string          `db:"response_body" json:"response_body"`
	Status         DeliveryStatus  `db:"status" json:"status"`
	Error          string          `db:"error" json:"error,omitempty"`
	DurationMS     int64           `db:"duration_ms" json:"duration_ms"`
	CompletedAt    time.Time       `db:"completed_at" json:"completed_at"`
}
