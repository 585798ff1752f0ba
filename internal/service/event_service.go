package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/unclebandit/wacrm-backend/internal/automation"
	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/event"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

// EventService is the entry point for domain mutations that happen outside
// this process and need to reach the automation queue.
type EventService struct {
	Queue automation.Enqueuer
	Waker Waker
}

// Publish enqueues a domain event. Events without a trigger are accepted;
// the consumer marks them processed.
func (s *EventService) Publish(ctx context.Context, name string, payload json.RawMessage) (*model.QueueItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.InvalidParam("event", "missing")
	}
	if _, err := event.Decode(name, payload); err != nil {
		return nil, appErrors.InvalidParam("payload", "must be a JSON object")
	}

	item, err := s.Queue.Enqueue(ctx, name, payload)
	if err != nil {
		return nil, err
	}
	if s.Waker != nil {
		s.Waker.Notify(ctx, name)
	}
	return item, nil
}
