package event

import (
	"encoding/json"
	"time"
)

// Envelope is what action handlers receive for the event being processed.
type Envelope struct {
	QueueItemID int64
	Name        string
	Trigger     string
	Payload     Payload
	OccurredAt  time.Time
}

// Draft is a new event produced by an action, to be enqueued.
type Draft struct {
	Name    string
	Payload any
}

// Marshal encodes the draft payload for the queue table.
func (d Draft) Marshal() (json.RawMessage, error) {
	if d.Payload == nil {
		return json.RawMessage("{}"), nil
	}
	b, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, err
	}
	return b, nil
}
