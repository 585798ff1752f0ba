package automation

import (
	"context"
	"encoding/json"

	"github.com/unclebandit/wacrm-backend/internal/model"
)

// The stores below are implemented by internal/repository over Postgres.

type LeadStore interface {
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	UpdateStage(ctx context.Context, leadID, stageID string) error
	UpdateTemperature(ctx context.Context, leadID, temperature string) error
	UpdateOwner(ctx context.Context, leadID, userID string) error
}

type TagStore interface {
	HasTag(ctx context.Context, leadID, tagID string) (bool, error)
	AttachTag(ctx context.Context, leadID, tagID string) error
	DetachTag(ctx context.Context, leadID, tagID string) (bool, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, task *model.Task) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

type ConversationStore interface {
	// FindOpenByLead returns nil when the lead has no open conversation.
	FindOpenByLead(ctx context.Context, leadID string) (*model.Conversation, error)
	// OpenConversation returns the open conversation for the chat, creating it if needed.
	OpenConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error)
	AssignOpenConversations(ctx context.Context, leadID, userID string) (int64, error)
}

type MessageStore interface {
	// InsertMessage stores m unless a row with the same provider id exists,
	// in which case that row is returned and created is false.
	InsertMessage(ctx context.Context, m *model.Message) (stored *model.Message, created bool, err error)
}

// Sender delivers outbound chat messages through the messaging provider.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) (providerMessageID string, err error)
}

// Enqueuer appends domain events to the automation queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, event string, payload json.RawMessage) (*model.QueueItem, error)
}
