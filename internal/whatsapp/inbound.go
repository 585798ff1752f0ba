package whatsapp

import (
	"encoding/json"
	"strings"
	"time"
)

// InboundEvent is the gateway's webhook envelope.
type InboundEvent struct {
	Event   string         `json:"event"`
	Session string         `json:"session"`
	Payload InboundMessage `json:"payload"`
}

// InboundMessage is a message as delivered by the gateway. Redeliveries of
// the same message carry the same id, possibly in another shape.
type InboundMessage struct {
	ID        json.RawMessage `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Body      string          `json:"body"`
	FromMe    bool            `json:"fromMe"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
}

// MessageID returns the raw provider id.
func (m InboundMessage) MessageID() string {
	return parseMessageID(m.ID)
}

// ChatID is the counterpart's chat: the sender for inbound messages and the
// recipient for echoes of our own.
func (m InboundMessage) ChatID() string {
	if m.FromMe {
		return m.To
	}
	return m.From
}

// Phone returns the digits of the chat id's user part.
func (m InboundMessage) Phone() string {
	chat := m.ChatID()
	if i := strings.Index(chat, "@"); i >= 0 {
		chat = chat[:i]
	}
	return chat
}

func (m InboundMessage) SentAt() *time.Time {
	if m.Timestamp <= 0 {
		return nil
	}
	t := time.Unix(m.Timestamp, 0).UTC()
	return &t
}

func (m InboundMessage) MessageType() string {
	if m.Type == "" {
		return "text"
	}
	return m.Type
}

// IsMessage reports whether the envelope carries a chat message.
func (e InboundEvent) IsMessage() bool {
	return e.Event == "message" || e.Event == "message.any"
}
