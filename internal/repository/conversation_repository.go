package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/wacrm-backend/internal/model"
)

type ConversationRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

const conversationColumns = `id, lead_id, chat_id, assigned_to, status, created_at`

func (r *ConversationRepository) FindOpenByLead(ctx context.Context, leadID string) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
        FROM conversations
        WHERE lead_id = $1 AND status = 'open'
        ORDER BY created_at DESC
        LIMIT 1`
	return r.findOne(ctx, query, leadID)
}

func (r *ConversationRepository) FindOpenByChat(ctx context.Context, chatID string) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE chat_id = $1 AND status = 'open'`
	return r.findOne(ctx, query, chatID)
}

// OpenConversation inserts c unless the chat already has an open
// conversation, which is then returned instead.
func (r *ConversationRepository) OpenConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.ConversationOpen
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
		if r.Now != nil {
			c.CreatedAt = r.Now()
		}
	}

	query := `
        INSERT INTO conversations (` + conversationColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (chat_id) WHERE status = 'open' DO NOTHING
        RETURNING id
    `
	var id string
	err := r.DB.QueryRowContext(ctx, query, c.ID, c.LeadID, c.ChatID, c.AssignedTo, c.Status, c.CreatedAt).Scan(&id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open conversation for %s: %w", c.ChatID, err)
	}

	existing, err := r.FindOpenByChat(ctx, c.ChatID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("open conversation for %s vanished", c.ChatID)
	}
	return existing, nil
}

func (r *ConversationRepository) AssignOpenConversations(ctx context.Context, leadID, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE conversations SET assigned_to = $1 WHERE lead_id = $2 AND status = 'open'`,
		userID, leadID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// findOne returns nil, nil when nothing matches.
func (r *ConversationRepository) findOne(ctx context.Context, query string, args ...any) (*model.Conversation, error) {
	var c model.Conversation
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.LeadID, &c.ChatID, &c.AssignedTo, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
