package automation

// Trigger is the internal classification a rule listens on.
type Trigger string

const (
	TriggerLeadCreated            Trigger = "lead_created"
	TriggerLeadUpdated            Trigger = "lead_updated"
	TriggerLeadStageChanged       Trigger = "lead_stage_changed"
	TriggerLeadTemperatureChanged Trigger = "lead_temperature_changed"
	TriggerLeadAssigned           Trigger = "lead_assigned"
	TriggerTagAdded               Trigger = "tag_added"
	TriggerTagRemoved             Trigger = "tag_removed"
	TriggerMessageReceived        Trigger = "message_received"
	TriggerMessageSent            Trigger = "message_sent"
	TriggerConversationCreated    Trigger = "conversation_created"
	TriggerConversationClosed     Trigger = "conversation_closed"
	TriggerTaskCreated            Trigger = "task_created"
	TriggerTaskCompleted          Trigger = "task_completed"
)

// Event names as they appear on the queue and in webhook subscriptions.
const (
	EventLeadCreated            = "lead.created"
	EventLeadUpdated            = "lead.updated"
	EventLeadStageChanged       = "lead.stage_changed"
	EventLeadTemperatureChanged = "lead.temperature_changed"
	EventLeadAssigned           = "lead.assigned"
	EventLeadTagAdded           = "lead.tag_added"
	EventLeadTagRemoved         = "lead.tag_removed"
	EventMessageReceived        = "message.received"
	EventMessageSent            = "message.sent"
	EventConversationCreated    = "conversation.created"
	EventConversationClosed     = "conversation.closed"
	EventTaskCreated            = "task.created"
	EventTaskCompleted          = "task.completed"
)

var triggers = map[string]Trigger{
	EventLeadCreated:            TriggerLeadCreated,
	EventLeadUpdated:            TriggerLeadUpdated,
	EventLeadStageChanged:       TriggerLeadStageChanged,
	EventLeadTemperatureChanged: TriggerLeadTemperatureChanged,
	EventLeadAssigned:           TriggerLeadAssigned,
	EventLeadTagAdded:           TriggerTagAdded,
	EventLeadTagRemoved:         TriggerTagRemoved,
	EventMessageReceived:        TriggerMessageReceived,
	EventMessageSent:            TriggerMessageSent,
	EventConversationCreated:    TriggerConversationCreated,
	EventConversationClosed:     TriggerConversationClosed,
	EventTaskCreated:            TriggerTaskCreated,
	EventTaskCompleted:          TriggerTaskCompleted,
}

// ResolveTrigger maps an external event name to its trigger. The second
// result is false for unmapped names; that is not an error.
func ResolveTrigger(event string) (Trigger, bool) {
	t, ok := triggers[event]
	return t, ok
}

// EventNames lists every event that maps to a trigger.
func EventNames() []string {
	names := make([]string, 0, len(triggers))
	for name := range triggers {
		names = append(names, name)
	}
	return names
}
