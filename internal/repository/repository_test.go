package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestQueueEnqueuePassesPayloadAsText(t *testing.T) {
	db, mock := newMock(t)
	repo := &QueueRepository{DB: db, Now: func() time.Time { return fixedNow }}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO automation_queue")).
		WithArgs("lead.created", `{"lead":{"id":"L1"}}`, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, fixedNow))

	item, err := repo.Enqueue(context.Background(), "lead.created", json.RawMessage(`{"lead":{"id":"L1"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.ID)
	assert.Equal(t, fixedNow, item.CreatedAt)
}

func TestQueueClaimPendingOrdersAndTagsToken(t *testing.T) {
	db, mock := newMock(t)
	repo := &QueueRepository{DB: db, Now: func() time.Time { return fixedNow }}

	later := fixedNow.Add(time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(sqlmock.AnyArg(), fixedNow.Add(time.Minute), fixedNow, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event", "payload", "processed", "created_at", "processed_at"}).
			AddRow(2, "lead.updated", []byte(`{}`), false, later, nil).
			AddRow(1, "lead.created", []byte(`{"a":1}`), false, fixedNow, nil))

	items, err := repo.ClaimPending(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, int64(2), items[1].ID)
	assert.NotEmpty(t, items[0].ClaimToken)
	assert.Equal(t, items[0].ClaimToken, items[1].ClaimToken)
	assert.JSONEq(t, `{"a":1}`, string(items[0].Payload))
}

func TestQueueMarkProcessed(t *testing.T) {
	db, mock := newMock(t)
	repo := &QueueRepository{DB: db, Now: func() time.Time { return fixedNow }}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE automation_queue")).
		WithArgs(fixedNow, int64(1), "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE automation_queue")).
		WithArgs(fixedNow, int64(1), "tok").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkProcessed(context.Background(), 1, "tok"))
	err := repo.MarkProcessed(context.Background(), 1, "tok")
	assert.ErrorIs(t, err, appErrors.ErrClaimLost)
}

func TestQueueRenewClaim(t *testing.T) {
	db, mock := newMock(t)
	repo := &QueueRepository{DB: db, Now: func() time.Time { return fixedNow }}

	mock.ExpectExec(regexp.QuoteMeta("SET claimed_until = $1")).
		WithArgs(fixedNow.Add(2*time.Minute), int64(3), "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $2 AND claim_token = $3 AND processed = false")).
		WithArgs(fixedNow.Add(2*time.Minute), int64(3), "tok").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.RenewClaim(context.Background(), 3, "tok", 2*time.Minute))
	err := repo.RenewClaim(context.Background(), 3, "tok", 2*time.Minute)
	assert.ErrorIs(t, err, appErrors.ErrClaimLost)
}

func TestQueueGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := &QueueRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("FROM automation_queue WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.True(t, appErrors.IsNotFound(err))
}

var messageRow = []string{"id", "conversation_id", "lead_id", "provider_message_id", "chat_id", "direction",
	"content", "message_type", "from_me", "status", "sent_at", "created_at"}

func TestInsertMessageCreates(t *testing.T) {
	db, mock := newMock(t)
	repo := &MessageRepository{DB: db, Now: func() time.Time { return fixedNow }}

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (provider_message_id) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m-1"))

	m := &model.Message{ID: "m-1", ConversationID: "c-1", ProviderMessageID: "ABC", ChatID: "55@c.us"}
	stored, created, err := repo.InsertMessage(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "m-1", stored.ID)
	assert.Equal(t, fixedNow, stored.CreatedAt)
}

func TestInsertMessageConflictReturnsExisting(t *testing.T) {
	db, mock := newMock(t)
	repo := &MessageRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (provider_message_id) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM messages WHERE provider_message_id = $1")).
		WithArgs("ABC").
		WillReturnRows(sqlmock.NewRows(messageRow).
			AddRow("m-original", "c-1", "L1", "ABC", "55@c.us", "inbound", "oi", "text", false, "received", nil, fixedNow))

	stored, created, err := repo.InsertMessage(context.Background(), &model.Message{ProviderMessageID: "ABC", ChatID: "55@c.us"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "m-original", stored.ID)
	require.NotNil(t, stored.LeadID)
	assert.Equal(t, "L1", *stored.LeadID)
}

func TestInsertMessageRejectsEmptyProviderID(t *testing.T) {
	db, _ := newMock(t)
	repo := &MessageRepository{DB: db}
	_, _, err := repo.InsertMessage(context.Background(), &model.Message{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidMessageID)
}

func TestOpenConversationReturnsExistingOpenOne(t *testing.T) {
	db, mock := newMock(t)
	repo := &ConversationRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (chat_id) WHERE status = 'open' DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE chat_id = $1 AND status = 'open'")).
		WithArgs("55@c.us").
		WillReturnRows(sqlmock.NewRows([]string{"id", "lead_id", "chat_id", "assigned_to", "status", "created_at"}).
			AddRow("conv-1", nil, "55@c.us", nil, "open", fixedNow))

	conv, err := repo.OpenConversation(context.Background(), &model.Conversation{ChatID: "55@c.us"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Nil(t, conv.LeadID)
}

func TestRecordAttemptIsTransactional(t *testing.T) {
	db, mock := newMock(t)
	repo := &DeliveryRepository{DB: db}

	d := &model.WebhookDelivery{ID: "d-1", WebhookID: "wh-1", Event: "lead.created", Status: model.DeliveryRetrying, Attempts: 1}
	a := &model.DeliveryAttempt{DeliveryID: "d-1", WebhookID: "wh-1", Event: "lead.created", Payload: json.RawMessage(`{}`),
		Attempt: 1, ResponseStatus: 500, Status: model.DeliveryRetrying, CompletedAt: fixedNow}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO webhook_delivery_attempts")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE webhook_deliveries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.RecordAttempt(context.Background(), d, a))
	assert.Equal(t, int64(11), a.ID)
}

func TestRecordAttemptRollsBackOnUpdateFailure(t *testing.T) {
	db, mock := newMock(t)
	repo := &DeliveryRepository{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO webhook_delivery_attempts")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE webhook_deliveries")).
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := repo.RecordAttempt(context.Background(),
		&model.WebhookDelivery{ID: "d-1"},
		&model.DeliveryAttempt{DeliveryID: "d-1", Attempt: 2, Payload: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "deadlock")
}

func TestDeliveryPayloadRoundTripsExactBytes(t *testing.T) {
	db, mock := newMock(t)
	repo := &DeliveryRepository{DB: db}
	signed := `{"id":"d-2","version":"1.0","event":"lead.created","event_label":"Lead criado","timestamp":"2026-03-10T12:00:00.000-03:00","data":{"b":1,"a":2}}`
	lease := fixedNow.Add(2 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_deliveries")).
		WithArgs("d-2", "wh-1", "lead.created", signed, model.DeliveryPending, 0, sqlmock.AnyArg(), lease, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE webhook_deliveries")).
		WithArgs(lease, fixedNow, 10).
		WillReturnRows(sqlmock.NewRows(deliveryRow).
			AddRow("d-2", "wh-1", "lead.created", signed, "retrying", 1, fixedNow, 500, "", fixedNow, nil))

	d := &model.WebhookDelivery{ID: "d-2", WebhookID: "wh-1", Event: "lead.created", Payload: json.RawMessage(signed),
		Status: model.DeliveryPending, CreatedAt: fixedNow}
	require.NoError(t, repo.CreateDelivery(context.Background(), d, lease))

	due, err := repo.ClaimDue(context.Background(), fixedNow, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, signed, string(due[0].Payload))
}

func TestDeliveryPayloadColumnsKeepBytes(t *testing.T) {
	schema, err := os.ReadFile("../../migrations/001_init.sql")
	require.NoError(t, err)

	for _, table := range []string{"webhook_deliveries", "webhook_delivery_attempts"} {
		block := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS ` + table + ` \((.*?)\n\);`).FindSubmatch(schema)
		require.NotNil(t, block, table)
		column := regexp.MustCompile(`(?m)^\s*payload\s+(\w+)`).FindSubmatch(block[1])
		require.NotNil(t, column, table)
		assert.Equal(t, "TEXT", string(column[1]), table)
	}
}

var deliveryRow = []string{"id", "webhook_id", "event", "payload", "status", "attempts", "next_attempt_at",
	"last_status_code", "last_error", "created_at", "completed_at"}

func TestClaimDue(t *testing.T) {
	db, mock := newMock(t)
	repo := &DeliveryRepository{DB: db}
	lease := fixedNow.Add(2 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE webhook_deliveries")).
		WithArgs(lease, fixedNow, 50).
		WillReturnRows(sqlmock.NewRows(deliveryRow).
			AddRow("d-1", "wh-1", "lead.created", []byte(`{"id":"d-1"}`), "retrying", 1, fixedNow, 500, "unexpected status 500", fixedNow, nil))

	due, err := repo.ClaimDue(context.Background(), fixedNow, 50, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, model.DeliveryRetrying, due[0].Status)
	assert.Equal(t, 500, due[0].LastStatusCode)
	assert.Equal(t, "unexpected status 500", due[0].LastError)
	assert.Nil(t, due[0].CompletedAt)
}

func TestListDeliveriesFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := &DeliveryRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("FROM webhook_deliveries WHERE webhook_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 40")).
		WithArgs("wh-1", "failed").
		WillReturnRows(sqlmock.NewRows(deliveryRow).
			AddRow("d-9", "wh-1", "lead.created", []byte(`{}`), "failed", 3, nil, nil, nil, fixedNow, fixedNow))

	out, err := repo.ListDeliveries(context.Background(), DeliveryFilter{WebhookID: "wh-1", Status: model.DeliveryFailed, Limit: 20, Offset: 40})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].LastStatusCode)
	assert.Empty(t, out[0].LastError)
}

var webhookRow = []string{"id", "url", "secret", "events", "headers", "is_active", "created_at"}

func TestListActiveForEvent(t *testing.T) {
	db, mock := newMock(t)
	repo := &WebhookRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("$1 = ANY(events)")).
		WithArgs("lead.created").
		WillReturnRows(sqlmock.NewRows(webhookRow).
			AddRow("wh-1", "https://example.com/hook", "s3cret", []byte(`{lead.created,message.received}`),
				[]byte(`{"X-Tenant":"demo"}`), true, fixedNow))

	subs, err := repo.ListActiveForEvent(context.Background(), "lead.created")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"lead.created", "message.received"}, subs[0].Events)
	assert.Equal(t, "demo", subs[0].Headers["X-Tenant"])
	assert.Equal(t, "s3cret", subs[0].Secret)
}

func TestGetSubscriptionNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := &WebhookRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("FROM webhook_subscriptions WHERE id = $1")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows(webhookRow))

	_, err := repo.GetSubscription(context.Background(), "gone")
	assert.True(t, appErrors.IsNotFound(err))
}
