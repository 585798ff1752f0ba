package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/wacrm-backend/internal/automation"
	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/event"
	"github.com/unclebandit/wacrm-backend/internal/metrics"
	"github.com/unclebandit/wacrm-backend/internal/model"
	"github.com/unclebandit/wacrm-backend/internal/whatsapp"
)

type LeadFinder interface {
	// FindByPhone returns nil when no lead has the number.
	FindByPhone(ctx context.Context, phone string) (*model.Lead, error)
}

type ConversationOpener interface {
	OpenConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error)
}

// IngestStore is the message store seen by ingestion. GetByProviderID
// answers redeliveries before any conversation is touched.
type IngestStore interface {
	automation.MessageStore
	GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error)
}

// Waker nudges the worker after new queue items were written.
type Waker interface {
	Notify(ctx context.Context, reason string)
}

// MessageIngestService stores provider messages exactly once. The provider
// delivers at least once, sometimes concurrently, so uniqueness rests on the
// provider_message_id constraint rather than on a read before the write.
type MessageIngestService struct {
	Messages      IngestStore
	Conversations ConversationOpener
	Leads         LeadFinder
	Events        automation.Enqueuer
	Waker         Waker
	Log           *zap.Logger
	Metrics       *metrics.Pipeline
}

// IngestWhatsApp converts a gateway message and ingests it.
func (s *MessageIngestService) IngestWhatsApp(ctx context.Context, m whatsapp.InboundMessage) (*model.Message, bool, error) {
	return s.Ingest(ctx, model.Message{
		ProviderMessageID: m.MessageID(),
		ChatID:            m.ChatID(),
		Content:           m.Body,
		MessageType:       m.MessageType(),
		FromMe:            m.FromMe,
		SentAt:            m.SentAt(),
	})
}

// Ingest stores m keyed by the short form of its provider id. It returns
// the stored row and whether this call created it; a redelivery returns the
// existing row with created=false.
func (s *MessageIngestService) Ingest(ctx context.Context, m model.Message) (*model.Message, bool, error) {
	short := whatsapp.ShortID(m.ProviderMessageID)
	if short == "" {
		return nil, false, appErrors.ErrInvalidMessageID
	}
	if strings.TrimSpace(m.ChatID) == "" {
		return nil, false, fmt.Errorf("message %s has no chat id", short)
	}
	m.ProviderMessageID = short

	// Fast path for redeliveries, so a duplicate of a message whose
	// conversation was closed does not reopen one. Concurrent first
	// deliveries still race to the insert below.
	existing, err := s.Messages.GetByProviderID(ctx, short)
	switch {
	case err == nil:
		s.Metrics.InboundMessage(false)
		s.logger().Debug("duplicate provider message ignored", zap.String("provider_message_id", short))
		return existing, false, nil
	case !appErrors.IsNotFound(err):
		return nil, false, fmt.Errorf("look up message %s: %w", short, err)
	}

	var lead *model.Lead
	if s.Leads != nil {
		found, err := s.Leads.FindByPhone(ctx, phoneOf(m.ChatID))
		if err != nil {
			return nil, false, fmt.Errorf("find lead: %w", err)
		}
		lead = found
	}

	conv := &model.Conversation{ChatID: m.ChatID, Status: model.ConversationOpen}
	if lead != nil {
		conv.LeadID = &lead.ID
		conv.AssignedTo = lead.OwnerID
	}
	conv, err = s.Conversations.OpenConversation(ctx, conv)
	if err != nil {
		return nil, false, fmt.Errorf("open conversation: %w", err)
	}

	m.ConversationID = conv.ID
	m.LeadID = conv.LeadID
	m.Direction = model.DirectionInbound
	m.Status = "received"
	if m.FromMe {
		m.Direction = model.DirectionOutbound
		m.Status = "sent"
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}

	stored, created, err := s.Messages.InsertMessage(ctx, &m)
	if err != nil {
		return nil, false, err
	}
	s.Metrics.InboundMessage(created)
	if !created {
		s.logger().Debug("duplicate provider message ignored", zap.String("provider_message_id", short))
		return stored, false, nil
	}

	if !stored.FromMe {
		s.enqueueReceived(ctx, stored, lead)
	}
	return stored, true, nil
}

// The message is already stored, so enqueue failures are logged only.
func (s *MessageIngestService) enqueueReceived(ctx context.Context, msg *model.Message, lead *model.Lead) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"message": event.Message{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			LeadID:         deref(msg.LeadID),
			ChatID:         msg.ChatID,
			Content:        msg.Content,
			Direction:      msg.Direction,
			FromMe:         msg.FromMe,
		},
	}
	if lead != nil {
		payload["lead"] = automation.LeadView(lead)
	}
	raw, err := json.Marshal(payload)
	if err == nil {
		_, err = s.Events.Enqueue(ctx, automation.EventMessageReceived, raw)
	}
	if err != nil {
		s.logger().Error("failed to enqueue message.received", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if s.Waker != nil {
		s.Waker.Notify(ctx, automation.EventMessageReceived)
	}
}

func (s *MessageIngestService) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func phoneOf(chatID string) string {
	if i := strings.Index(chatID, "@"); i >= 0 {
		return chatID[:i]
	}
	return chatID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
