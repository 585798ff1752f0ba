package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/event"
	"github.com/unclebandit/wacrm-backend/internal/model"
	"github.com/unclebandit/wacrm-backend/internal/whatsapp"
)

const (
	ActionMoveStage      = "move_stage"
	ActionSetTemperature = "set_temperature"
	ActionAddTag         = "add_tag"
	ActionRemoveTag      = "remove_tag"
	ActionCreateTask     = "create_task"
	ActionNotifyUser     = "notify_user"
	ActionAssignUser     = "assign_user"
	ActionSendMessage    = "send_message"
)

const defaultTaskDue = 24 * time.Hour

var temperatures = map[string]bool{"cold": true, "warm": true, "hot": true}

// Deps are the collaborators the built-in actions mutate.
type Deps struct {
	Leads         LeadStore
	Tags          TagStore
	Tasks         TaskStore
	Notifications NotificationStore
	Conversations ConversationStore
	Messages      MessageStore
	Sender        Sender
	Events        Enqueuer
	Now           func() time.Time
	Log           *zap.Logger
}

type actions struct {
	Deps
}

// NewDefaultRegistry registers every built-in action type.
func NewDefaultRegistry(d Deps) *Registry {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	a := &actions{Deps: d}

	r := NewRegistry()
	r.Register(ActionMoveStage, HandlerFunc(a.moveStage))
	r.Register(ActionSetTemperature, HandlerFunc(a.setTemperature))
	r.Register(ActionAddTag, HandlerFunc(a.addTag))
	r.Register(ActionRemoveTag, HandlerFunc(a.removeTag))
	r.Register(ActionCreateTask, HandlerFunc(a.createTask))
	r.Register(ActionNotifyUser, HandlerFunc(a.notifyUser))
	r.Register(ActionAssignUser, HandlerFunc(a.assignUser))
	r.Register(ActionSendMessage, HandlerFunc(a.sendMessage))
	return r
}

func (a *actions) moveStage(ctx context.Context, p Params, env *event.Envelope) (map[string]any, error) {
	leadID, err := leadIDFor(p, env)
	if err != nil {
		return nil, err
	}
	stageID, err := p.String("stage_id")
	if err != nil {
		return nil, err
	}

	lead, err := a.Leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	from := ""
	if lead.StageID != nil {
		from = *lead.StageID
	}
	if from == stageID {
		return map[string]any{"lead_id": leadID, "stage_id": stageID, "unchanged": true}, nil
	}

	if err := a.Leads.UpdateStage(ctx, leadID, stageID); err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}
	lead.StageID = &stageID

	out := map[string]any{"lead_id": leadID, "from_stage": from, "stage_id": stageID}
	a.emit(ctx, out, EventLeadStageChanged, map[string]any{
		"lead":       LeadView(lead),
		"from_stage": from,
		"to_stage":   stageID,
	})
	return out, nil
}

func (a *actions) setTemperature(ctx context.Context, p Params, env *event.Envelope) (map[string]any, error) {
	leadID, err := leadIDFor(p, env)
	if err != nil {
		return nil, err
	}
	temperature, err := p.String("temperature")
	if err != nil {
		return nil, err
	}
	if !temperatures[temperature] {
		return nil, appErrors.InvalidParam("temperature", "must be cold, warm or hot")
	}

	lead, err := a.Leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Temperature == temperature {
		return map[string]any{"lead_id": leadID, "temperature": temperature, "unchanged": true}, nil
	}

	if err := a.Leads.UpdateTemperature(ctx, leadID, temperature); err != nil {
		return nil, fmt.Errorf("update temperature: %w", err)
	}
	previous := lead.Temperature
	lead.Temperature = temperature

	out := map[string]any{"lead_id": leadID, "from": previous, "temperature": temperature}
	a.emit(ctx, out, EventLeadTemperatureChanged, map[string]any{
		"lead":                 LeadView(lead),
		"previous_temperature": previous,
	})
	return out, nil
}

func (a *actions) addTag(ctx context.Context, p Params, env *event.Envelope) (map[string]any, error) {
	leadID, err := leadIDFor(p, env)
	if err != nil {
		return nil, err
	}
	tagID, err := p.String("tag_id")
	if err != nil {
		return nil, err
	}

	exists, err := a.Tags.HasTag(ctx, leadID, tagID)
	if err != nil {
		return nil, fmt.Errorf("check tag: %w", err)
	}
	if exists {
		return map[string]any{"lead_id": leadID, "tag_id": tagID, "already_attached": true}, nil
	}

	if err := a.Tags.AttachTag(ctx, leadID, tagID); err != nil {
		return nil, fmt.Errorf("attach tag: %w", err)
	}

	out := map[string]any{"lead_id": leadID, "tag_id": tagID}
	a.emit(ctx, out, EventLeadTagAdded, map[string]any{
		"lead":   map[string]any{"id": leadID},
		"tag_id": tagID,
	})
	return out, nil
}

func (a *actions) removeTag(ctx context.Context, p Params, env *event.Envelope) (map[string]any, error) {
	leadID, err := leadIDFor(p, env)
	if err != nil {
		return nil, err
	}
	tagID, err := p.String("tag_id")
	if err != nil {
		return nil, err
	}

	removed, err := a.Tags.DetachTag(ctx, leadID, tagID)
	if err != nil {
		return nil, fmt.Errorf("detach tag: %w", err)
	}

	out := map[string]any{"lead_id": leadID, "tag_id": tagID, "removed": removed}
	if removed {
		a.emit(ctx, out, EventLeadTagRemoved, map[string]any{
			"lead":   map[string]any{"id": leadID},
			"tag_id": tagID,
		})
	}
	return out, nil
}

func (a *actions) createTask(ctx context.Context, p Params, env *event.Envelope) (map[string]any, error) {
	title, err := p.String("title")
	if err != nil {
		return nil, err
	}

	due := defaultTaskDue
	if days, ok, err := p.Number("due_in_days"); err != nil {
		return nil, err
	} else if ok {
		due = time.Duration(days * float64(24*time.Hour))
	}
	if hours, ok, err := p.Number("due_in_hours"); err != nil {
		return nil, err
	} else if ok {
		due = time.Duration(hours * float64(time.Hour))
	}

	task := &model.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: p.OptionalString("description"),
		DueDate:     a.Now().Add(due),
		Status:      "pending",
		CreatedAt:   a.Now(),
	}
	if leadID := leadIDOrEmpty(p, env); leadID != "" {
		task.LeadID = &leadID
	}
	if assignee := p.OptionalString("assigned_to"); assignee != "" {
		task.AssignedTo = &assignee
	}

	if err := a.Tasks.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	out := map[string]any{"task_id": task.ID, "due_date": task.DueDate.Format(time.RFC3339)}
	a.emit(ctx, out, EventTaskCreated, map[string]any{
		"task": event.Task{
			ID:         task.ID,
			LeadID:     deref(task.LeadID),
			Title:      task.Title,
			AssignedTo: deref(task.AssignedTo),
			DueDate:    task.DueDate,
			Status:     task.Status,
		},
	})
	return out, nil
}

func (a *actions) notifyUser(ctx context.Context, p Params, env *event.Envelope) (map[string]any, error) {
	userID, err := p.String("user_id")
	if err != nil {
		return nil, err
	}
	title, err := p.String("title")
	if err != nil {
		return nil, err
	}

	n := &model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      p.OptionalString("body"),
		Link:      p.OptionalString("link"),
		CreatedAt: a.Now(),
	}
	if n.Link == "" {
		if leadID := leadIDOrEmpty(p, env); leadID != "" {
			n.Link = "/leads/" + leadID
		}
	}

	if err := a.Notifications.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return map[string]any{"notification_id": n.ID, "user_id": userID}, nil
}

func (a *actions) assignUser(ctx context.Context, p Params, env *event.Envelope) (map[string]any, error) {
	leadID, err := leadIDFor(p, env)
	if err != nil {
		return nil, err
	}
	userID, err := p.String("user_id")
	if err != nil {
		return nil, err
	}

	lead, err := a.Leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	previous := deref(lead.OwnerID)

	if err := a.Leads.UpdateOwner(ctx, leadID, userID); err != nil {
		return nil, fmt.Errorf("update owner: %w", err)
	}
	conversations, err := a.Conversations.AssignOpenConversations(ctx, leadID, userID)
	if err != nil {
		return nil, fmt.Errorf("assign conversations: %w", err)
	}
	lead.OwnerID = &userID

	out := map[string]any{"lead_id": leadID, "user_id": userID, "conversations": conversations}
	a.emit(ctx, out, EventLeadAssigned, map[string]any{
		"lead":           LeadView(lead),
		"previous_owner": previous,
	})
	return out, nil
}

func (a *actions) sendMessage(ctx context.Context, p Params, env *event.Envelope) (map[string]any, error) {
	leadID, err := leadIDFor(p, env)
	if err != nil {
		return nil, err
	}
	template := p.OptionalString("template")
	if template == "" {
		if template, err = p.String("message"); err != nil {
			return nil, appErrors.InvalidParam("template", "missing")
		}
	}

	lead, err := a.Leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Phone == "" {
		return nil, fmt.Errorf("lead %s has no phone number", leadID)
	}

	conv, err := a.Conversations.FindOpenByLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv == nil {
		conv, err = a.Conversations.OpenConversation(ctx, &model.Conversation{
			LeadID:     &lead.ID,
			ChatID:     whatsapp.ChatID(lead.Phone),
			AssignedTo: lead.OwnerID,
			Status:     model.ConversationOpen,
		})
		if err != nil {
			return nil, fmt.Errorf("open conversation: %w", err)
		}
	}

	text := RenderTemplate(template, LeadPlaceholders(lead))
	providerID, err := a.Sender.SendText(ctx, conv.ChatID, text)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	now := a.Now()
	msg, _, err := a.Messages.InsertMessage(ctx, &model.Message{
		ConversationID:    conv.ID,
		LeadID:            &lead.ID,
		ProviderMessageID: whatsapp.ShortID(providerID),
		ChatID:            conv.ChatID,
		Direction:         model.DirectionOutbound,
		Content:           text,
		MessageType:       "text",
		FromMe:            true,
		Status:            "sent",
		SentAt:            &now,
	})
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	out := map[string]any{"message_id": msg.ID, "conversation_id": conv.ID, "provider_message_id": msg.ProviderMessageID}
	a.emit(ctx, out, EventMessageSent, map[string]any{
		"message": event.Message{
			ID:             msg.ID,
			ConversationID: conv.ID,
			LeadID:         lead.ID,
			ChatID:         conv.ChatID,
			Content:        text,
			Direction:      model.DirectionOutbound,
			FromMe:         true,
		},
		"lead": LeadView(lead),
	})
	return out, nil
}

// emit enqueues a follow-up event. The action's mutation has already been
// applied, so a queue failure is reported in the output instead of failing it.
func (a *actions) emit(ctx context.Context, out map[string]any, name string, payload any) {
	if a.Events == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err == nil {
		_, err = a.Events.Enqueue(ctx, name, raw)
	}
	if err != nil {
		a.Log.Warn("failed to enqueue follow-up event", zap.String("event", name), zap.Error(err))
		out["follow_up_error"] = err.Error()
	}
}

func leadIDFor(p Params, env *event.Envelope) (string, error) {
	if id := leadIDOrEmpty(p, env); id != "" {
		return id, nil
	}
	return "", appErrors.InvalidParam("lead_id", "event does not reference a lead")
}

func leadIDOrEmpty(p Params, env *event.Envelope) string {
	if id := p.OptionalString("lead_id"); id != "" {
		return id
	}
	if env == nil || env.Payload == nil {
		return ""
	}
	return event.LeadIDOf(env.Payload)
}

// LeadView is the event representation of a lead.
func LeadView(l *model.Lead) event.Lead {
	return event.Lead{
		ID:          l.ID,
		Name:        l.Name,
		Phone:       l.Phone,
		Email:       l.Email,
		Company:     l.Company,
		StageID:     deref(l.StageID),
		Temperature: l.Temperature,
		OwnerID:     deref(l.OwnerID),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
