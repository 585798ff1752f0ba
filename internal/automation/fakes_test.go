package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

// MockStore implements every store the actions touch, in memory.
type MockStore struct {
	mu            sync.Mutex
	leads         map[string]*model.Lead
	tags          map[string]map[string]bool
	tasks         []*model.Task
	notifications []*model.Notification
	conversations []*model.Conversation
	messages      []*model.Message
	attachCalls   int
	failStage     error
}

func NewMockStore(leads ...*model.Lead) *MockStore {
	s := &MockStore{leads: map[string]*model.Lead{}, tags: map[string]map[string]bool{}}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *MockStore) GetLead(_ context.Context, id string) (*model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, appErrors.NewNotFound("lead", id)
	}
	cp := *l
	return &cp, nil
}

func (s *MockStore) UpdateStage(_ context.Context, leadID, stageID string) error {
	if s.failStage != nil {
		return s.failStage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[leadID].StageID = &stageID
	return nil
}

func (s *MockStore) UpdateTemperature(_ context.Context, leadID, temperature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[leadID].Temperature = temperature
	return nil
}

func (s *MockStore) UpdateOwner(_ context.Context, leadID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[leadID].OwnerID = &userID
	return nil
}

func (s *MockStore) HasTag(_ context.Context, leadID, tagID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags[leadID][tagID], nil
}

func (s *MockStore) AttachTag(_ context.Context, leadID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachCalls++
	if s.tags[leadID] == nil {
		s.tags[leadID] = map[string]bool{}
	}
	s.tags[leadID][tagID] = true
	return nil
}

func (s *MockStore) DetachTag(_ context.Context, leadID, tagID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tags[leadID][tagID] {
		return false, nil
	}
	delete(s.tags[leadID], tagID)
	return true, nil
}

func (s *MockStore) CreateTask(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *MockStore) CreateNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *MockStore) FindOpenByLead(_ context.Context, leadID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.LeadID != nil && *c.LeadID == leadID && c.Status == model.ConversationOpen {
			return c, nil
		}
	}
	return nil, nil
}

func (s *MockStore) OpenConversation(_ context.Context, c *model.Conversation) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.conversations {
		if existing.ChatID == c.ChatID && existing.Status == model.ConversationOpen {
			return existing, nil
		}
	}
	c.ID = "conv-" + c.ChatID
	s.conversations = append(s.conversations, c)
	return c, nil
}

func (s *MockStore) AssignOpenConversations(_ context.Context, leadID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.conversations {
		if c.LeadID != nil && *c.LeadID == leadID && c.Status == model.ConversationOpen {
			c.AssignedTo = &userID
			n++
		}
	}
	return n, nil
}

func (s *MockStore) InsertMessage(_ context.Context, m *model.Message) (*model.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages {
		if existing.ProviderMessageID == m.ProviderMessageID {
			return existing, false, nil
		}
	}
	m.ID = "msg-" + m.ProviderMessageID
	s.messages = append(s.messages, m)
	return m, true, nil
}

// MockSender records outbound texts and answers with a fixed provider id.
type MockSender struct {
	chatID     string
	text       string
	providerID string
	err        error
}

func (m *MockSender) SendText(_ context.Context, chatID, text string) (string, error) {
	m.chatID, m.text = chatID, text
	return m.providerID, m.err
}

type queuedEvent struct {
	Name    string
	Payload map[string]any
}

// MockEvents captures follow-up events.
type MockEvents struct {
	mu     sync.Mutex
	events []queuedEvent
	err    error
}

func (m *MockEvents) Enqueue(_ context.Context, name string, payload json.RawMessage) (*model.QueueItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, queuedEvent{Name: name, Payload: data})
	return &model.QueueItem{ID: int64(len(m.events)), Event: name, Payload: payload}, nil
}

func (m *MockEvents) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Name)
	}
	return out
}

var errBoom = errors.New("boom")
