// Package event decodes queued domain event payloads into typed variants.
//
// Every variant keeps the generic JSON view of the payload so rule
// conditions can address arbitrary fields by dot path, while action
// handlers work against the typed fields.
package event

import (
	"encoding/json"
	"strings"
	"time"
)

type Kind string

const (
	KindLead         Kind = "lead"
	KindMessage      Kind = "message"
	KindConversation Kind = "conversation"
	KindTask         Kind = "task"
	KindOpaque       Kind = "opaque"
)

// Payload is implemented by every event variant.
type Payload interface {
	Kind() Kind
	// Data returns the decoded JSON object the variant was built from.
	Data() map[string]any
}

// LeadScoped is implemented by variants that reference a lead.
type LeadScoped interface {
	LeadID() string
}

type Lead struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Company     string `json:"company"`
	StageID     string `json:"stage_id"`
	Temperature string `json:"temperature"`
	OwnerID     string `json:"owner_id"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	LeadID         string `json:"lead_id"`
	ChatID         string `json:"chat_id"`
	Content        string `json:"content"`
	Direction      string `json:"direction"`
	FromMe         bool   `json:"from_me"`
}

type Conversation struct {
	ID         string `json:"id"`
	LeadID     string `json:"lead_id"`
	ChatID     string `json:"chat_id"`
	AssignedTo string `json:"assigned_to"`
	Status     string `json:"status"`
}

type Task struct {
	ID         string    `json:"id"`
	LeadID     string    `json:"lead_id"`
	Title      string    `json:"title"`
	AssignedTo string    `json:"assigned_to"`
	DueDate    time.Time `json:"due_date"`
	Status     string    `json:"status"`
}

type LeadPayload struct {
	Lead Lead `json:"lead"`
	data map[string]any
}

func (p *LeadPayload) Kind() Kind           { return KindLead }
func (p *LeadPayload) Data() map[string]any { return p.data }
func (p *LeadPayload) LeadID() string       { return p.Lead.ID }

type MessagePayload struct {
	Message Message `json:"message"`
	Lead    *Lead   `json:"lead,omitempty"`
	data    map[string]any
}

func (p *MessagePayload) Kind() Kind           { return KindMessage }
func (p *MessagePayload) Data() map[string]any { return p.data }

func (p *MessagePayload) LeadID() string {
	if p.Lead != nil && p.Lead.ID != "" {
		return p.Lead.ID
	}
	return p.Message.LeadID
}

type ConversationPayload struct {
	Conversation Conversation `json:"conversation"`
	Lead         *Lead        `json:"lead,omitempty"`
	data         map[string]any
}

func (p *ConversationPayload) Kind() Kind           { return KindConversation }
func (p *ConversationPayload) Data() map[string]any { return p.data }

func (p *ConversationPayload) LeadID() string {
	if p.Lead != nil && p.Lead.ID != "" {
		return p.Lead.ID
	}
	return p.Conversation.LeadID
}

type TaskPayload struct {
	Task Task  `json:"task"`
	Lead *Lead `json:"lead,omitempty"`
	data map[string]any
}

func (p *TaskPayload) Kind() Kind           { return KindTask }
func (p *TaskPayload) Data() map[string]any { return p.data }

func (p *TaskPayload) LeadID() string {
	if p.Lead != nil && p.Lead.ID != "" {
		return p.Lead.ID
	}
	return p.Task.LeadID
}

// OpaquePayload carries events this version does not know how to type.
type OpaquePayload struct {
	data map[string]any
}

func (p *OpaquePayload) Kind() Kind           { return KindOpaque }
func (p *OpaquePayload) Data() map[string]any { return p.data }

// LeadID falls back to a top-level "lead_id" or "lead.id" when present.
func (p *OpaquePayload) LeadID() string {
	if id, ok := p.data["lead_id"].(string); ok {
		return id
	}
	if lead, ok := p.data["lead"].(map[string]any); ok {
		if id, ok := lead["id"].(string); ok {
			return id
		}
	}
	return ""
}

// Decode builds the variant for an event name. Unknown event families and
// payloads that do not fit their variant decode to OpaquePayload; only
// payloads that are not a JSON object are an error.
func Decode(name string, raw json.RawMessage) (Payload, error) {
	data := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
	}

	family, _, _ := strings.Cut(name, ".")
	switch Kind(family) {
	case KindLead:
		p := &LeadPayload{data: data}
		if _, ok := data["lead"]; ok && json.Unmarshal(raw, p) == nil {
			return p, nil
		}
	case KindMessage:
		p := &MessagePayload{data: data}
		if _, ok := data["message"]; ok && json.Unmarshal(raw, p) == nil {
			return p, nil
		}
	case KindConversation:
		p := &ConversationPayload{data: data}
		if _, ok := data["conversation"]; ok && json.Unmarshal(raw, p) == nil {
			return p, nil
		}
	case KindTask:
		p := &TaskPayload{data: data}
		if _, ok := data["task"]; ok && json.Unmarshal(raw, p) == nil {
			return p, nil
		}
	}
	return &OpaquePayload{data: data}, nil
}

// LeadIDOf returns the lead referenced by p, or "".
func LeadIDOf(p Payload) string {
	if ls, ok := p.(LeadScoped); ok {
		return ls.LeadID()
	}
	return ""
}
