// internal/model/queue_item.go
package model

import (
	"encoding/json"
	"time"
)

// QueueItem is a domain event waiting for the automation consumer.
type QueueItem struct {
	ID          int64           `db:"id" json:"id"`
	Event       string          `db:"event" json:"event"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Processed   bool            `db:"processed" json:"processed"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`

	// ClaimToken identifies the consumer pass currently holding the item.
	ClaimToken string `db:"claim_token" json:"-"`
}
