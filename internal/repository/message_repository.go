package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

type MessageRepositoryInterface interface {
	InsertMessage(ctx context.Context, m *model.Message) (*model.Message, bool, error)
	GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error)
}

type MessageRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

const messageColumns = `id, conversation_id, lead_id, provider_message_id, chat_id, direction, content, message_type, from_me, status, sent_at, created_at`

// InsertMessage relies on the unique provider_message_id constraint: a
// concurrent duplicate loses the insert and gets the stored row back.
func (r *MessageRepository) InsertMessage(ctx context.Context, m *model.Message) (*model.Message, bool, error) {
	if m.ProviderMessageID == "" {
		return nil, false, appErrors.ErrInvalidMessageID
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
		if r.Now != nil {
			m.CreatedAt = r.Now()
		}
	}

	query := `
        INSERT INTO messages (` + messageColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (provider_message_id) DO NOTHING
        RETURNING id
    `
	var id string
	err := r.DB.QueryRowContext(ctx, query,
		m.ID, m.ConversationID, m.LeadID, m.ProviderMessageID, m.ChatID, m.Direction, m.Content,
		m.MessageType, m.FromMe, m.Status, m.SentAt, m.CreatedAt,
	).Scan(&id)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert message %s: %w", m.ProviderMessageID, err)
	}

	existing, err := r.GetByProviderID(ctx, m.ProviderMessageID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *MessageRepository) GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE provider_message_id = $1`
	var m model.Message
	err := r.DB.QueryRowContext(ctx, query, providerMessageID).Scan(
		&m.ID, &m.ConversationID, &m.LeadID, &m.ProviderMessageID, &m.ChatID, &m.Direction, &m.Content,
		&m.MessageType, &m.FromMe, &m.Status, &m.SentAt, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("message", providerMessageID)
		}
		return nil, err
	}
	return &m, nil
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
