package service

import (
	"encoding/json"
	"time"

	"github.com/unclebandit/wacrm-backend/internal/automation"
)

const (
	payloadVersion  = "1.0"
	timestampLayout = "2006-01-02T15:04:05.000-07:00"
)

// Webhook timestamps are rendered in Brasília time, which has no DST.
var brasilia = time.FixedZone("BRT", -3*60*60)

var eventLabels = map[string]string{
	automation.EventLeadCreated:            "Lead criado",
	automation.EventLeadUpdated:            "Lead atualizado",
	automation.EventLeadStageChanged:       "Lead mudou de etapa",
	automation.EventLeadTemperatureChanged: "Temperatura do lead alterada",
	automation.EventLeadAssigned:           "Lead atribuído",
	automation.EventLeadTagAdded:           "Tag adicionada ao lead",
	automation.EventLeadTagRemoved:         "Tag removida do lead",
	automation.EventMessageReceived:        "Mensagem recebida",
	automation.EventMessageSent:            "Mensagem enviada",
	automation.EventConversationCreated:    "Conversa criada",
	automation.EventConversationClosed:     "Conversa encerrada",
	automation.EventTaskCreated:            "Tarefa criada",
	automation.EventTaskCompleted:          "Tarefa concluída",
}

// EventLabel returns the human label of an event, or the name itself.
func EventLabel(event string) string {
	if label, ok := eventLabels[event]; ok {
		return label
	}
	return event
}

type WebhookPayload struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	Event      string `json:"event"`
	EventLabel string `json:"event_label"`
	Timestamp  string `json:"timestamp"`
	Data       any    `json:"data"`
}

// BuildWebhookPayload encodes the body sent to subscribers. The returned
// bytes are what gets signed and stored for retries.
func BuildWebhookPayload(id, event string, data any, at time.Time) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(WebhookPayload{
		ID:         id,
		Version:    payloadVersion,
		Event:      event,
		EventLabel: EventLabel(event),
		Timestamp:  at.In(brasilia).Format(timestampLayout),
		Data:       data,
	})
}
