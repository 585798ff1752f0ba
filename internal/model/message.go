// internal/model/message.go
package model

import "time"

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	ConversationOpen   = "open"
	ConversationClosed = "closed"
)

type Message struct {
	ID                string     `db:"id" json:"id"`
	ConversationID    string     `db:"conversation_id" json:"conversation_id"`
	LeadID            *string    `db:"lead_id" json:"lead_id,omitempty"`
	ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id"`
	ChatID            string     `db:"chat_id" json:"chat_id"`
	Direction         string     `db:"direction" json:"direction"`
	Content           string     `db:"content" json:"content"`
	MessageType       string     `db:"message_type" json:"message_type"`
	FromMe            bool       `db:"from_me" json:"from_me"`
	Status            string     `db:"status" json:"status"`
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

type Conversation struct {
	ID         string    `db:"id" json:"id"`
	LeadID     *string   `db:"lead_id" json:"lead_id,omitempty"`
	ChatID     string    `db:"chat_id" json:"chat_id"`
	AssignedTo *string   `db:"assigned_to" json:"assigned_to,omitempty"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
