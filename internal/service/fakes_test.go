package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

// fakeClock is a settable clock shared by the components under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockDeliveryStore keeps deliveries and the attempt log in memory, with the
// same claim rules as the SQL store.
type MockDeliveryStore struct {
	mu           sync.Mutex
	deliveries   map[string]*model.WebhookDelivery
	claimedUntil map[string]*time.Time
	attempts     []model.DeliveryAttempt
	abandoned    map[string]string
}

func NewMockDeliveryStore() *MockDeliveryStore {
	return &MockDeliveryStore{
		deliveries:   map[string]*model.WebhookDelivery{},
		claimedUntil: map[string]*time.Time{},
		abandoned:    map[string]string{},
	}
}

func (s *MockDeliveryStore) CreateDelivery(_ context.Context, d *model.WebhookDelivery, claimedUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.deliveries[d.ID] = &cp
	s.claimedUntil[d.ID] = &claimedUntil
	return nil
}

func (s *MockDeliveryStore) RecordAttempt(_ context.Context, d *model.WebhookDelivery, a *model.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.attempts) + 1)
	s.attempts = append(s.attempts, *a)
	cp := *d
	s.deliveries[d.ID] = &cp
	s.claimedUntil[d.ID] = nil
	return nil
}

func (s *MockDeliveryStore) ClaimDue(_ context.Context, now time.Time, limit int, claimedUntil time.Time) ([]model.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.WebhookDelivery
	for id, d := range s.deliveries {
		if d.Status != model.DeliveryPending && d.Status != model.DeliveryRetrying {
			continue
		}
		if d.NextAttemptAt == nil || d.NextAttemptAt.After(now) {
			continue
		}
		if c := s.claimedUntil[id]; c != nil && !c.Before(now) {
			continue
		}
		lease := claimedUntil
		s.claimedUntil[id] = &lease
		due = append(due, *d)
		if len(due) == limit {
			break
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(*due[j].NextAttemptAt) })
	return due, nil
}

func (s *MockDeliveryStore) Abandon(_ context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deliveries[id]
	d.Status = model.DeliveryFailed
	d.LastError = reason
	d.CompletedAt = &at
	d.NextAttemptAt = nil
	s.claimedUntil[id] = nil
	s.abandoned[id] = reason
	return nil
}

func (s *MockDeliveryStore) only() model.WebhookDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deliveries {
		return *d
	}
	return model.WebhookDelivery{}
}

func (s *MockDeliveryStore) attemptLog() []model.DeliveryAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DeliveryAttempt(nil), s.attempts...)
}

// MockSubscriptions serves both the active-by-event listing and lookups by id.
type MockSubscriptions struct {
	mu   sync.Mutex
	subs []*model.WebhookSubscription
}

func (m *MockSubscriptions) ListActiveForEvent(_ context.Context, event string) ([]model.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WebhookSubscription
	for _, s := range m.subs {
		if s.IsActive && s.Subscribes(event) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *MockSubscriptions) GetSubscription(_ context.Context, id string) (*model.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("webhook", id)
}

func (m *MockSubscriptions) setActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			s.IsActive = active
		}
	}
}

// MockQueue is an in-memory automation queue with the same lease rules as the
// SQL store: a claim can be taken over once claimed_until has passed, and
// renewal and completion need the current token.
type MockQueue struct {
	mu           sync.Mutex
	now          func() time.Time
	items        []*model.QueueItem
	claimedUntil map[int64]time.Time
	claimLost    map[int64]bool
	claims       int
}

func (q *MockQueue) clock() time.Time {
	if q.now != nil {
		return q.now()
	}
	return time.Now()
}

func (q *MockQueue) Enqueue(_ context.Context, event string, payload json.RawMessage) (*model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := &model.QueueItem{ID: int64(len(q.items) + 1), Event: event, Payload: payload, CreatedAt: time.Now()}
	q.items = append(q.items, item)
	return item, nil
}

func (q *MockQueue) ClaimPending(_ context.Context, limit int, lease time.Duration) ([]model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimedUntil == nil {
		q.claimedUntil = map[int64]time.Time{}
	}
	q.claims++
	now := q.clock()
	token := fmt.Sprintf("token-%d", q.claims)
	var out []model.QueueItem
	for _, item := range q.items {
		if item.Processed {
			continue
		}
		if until, ok := q.claimedUntil[item.ID]; ok && !until.Before(now) {
			continue
		}
		item.ClaimToken = token
		q.claimedUntil[item.ID] = now.Add(lease)
		out = append(out, *item)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (q *MockQueue) RenewClaim(_ context.Context, id int64, token string, lease time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimLost[id] {
		return appErrors.ErrClaimLost
	}
	for _, item := range q.items {
		if item.ID == id && item.ClaimToken == token && !item.Processed {
			q.claimedUntil[id] = q.clock().Add(lease)
			return nil
		}
	}
	return appErrors.ErrClaimLost
}

func (q *MockQueue) MarkProcessed(_ context.Context, id int64, token string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimLost[id] {
		return appErrors.ErrClaimLost
	}
	for _, item := range q.items {
		if item.ID == id && item.ClaimToken == token && !item.Processed {
			now := time.Now()
			item.Processed = true
			item.ProcessedAt = &now
			delete(q.claimedUntil, id)
			return nil
		}
	}
	return appErrors.ErrClaimLost
}

func (q *MockQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if !item.Processed {
			n++
		}
	}
	return n
}

type MockRules struct {
	byTrigger map[string][]model.AutomationRule
	err       error
}

func (m *MockRules) ListActiveByTrigger(_ context.Context, trigger string) ([]model.AutomationRule, error) {
	return m.byTrigger[trigger], m.err
}

type MockRuns struct {
	mu   sync.Mutex
	runs []model.AutomationRun
}

func (m *MockRuns) Record(_ context.Context, run *model.AutomationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = int64(len(m.runs) + 1)
	m.runs = append(m.runs, *run)
	return nil
}

type dispatched struct {
	Event string
	Data  any
}

type MockNotifier struct {
	mu     sync.Mutex
	events []dispatched
}

func (m *MockNotifier) Dispatch(_ context.Context, event string, data any) ([]model.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, dispatched{Event: event, Data: data})
	return nil, nil
}

type MockWaker struct {
	mu      sync.Mutex
	reasons []string
}

func (m *MockWaker) Notify(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons = append(m.reasons, reason)
}
