package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/unclebandit/wacrm-backend/internal/model"
	"github.com/unclebandit/wacrm-backend/internal/service"
)

type EventPublisher interface {
	Publish(ctx context.Context, name string, payload json.RawMessage) (*model.QueueItem, error)
}

type PendingProcessor interface {
	ProcessPending(ctx context.Context) (service.PassResult, error)
}

type RetryRunner interface {
	RunDue(ctx context.Context) (service.RetryResult, error)
}

// AutomationController exposes queue intake and manual pipeline passes.
type AutomationController struct {
	Events   EventPublisher
	Consumer PendingProcessor
	Retries  RetryRunner
}

func (c *AutomationController) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	item, err := c.Events.Publish(r.Context(), body.Event, body.Payload)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, item)
}

func (c *AutomationController) RunPending(w http.ResponseWriter, r *http.Request) {
	res, err := c.Consumer.ProcessPending(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (c *AutomationController) RunRetries(w http.ResponseWriter, r *http.Request) {
	res, err := c.Retries.RunDue(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
