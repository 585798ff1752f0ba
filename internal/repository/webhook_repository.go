package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

type WebhookRepositoryInterface interface {
	ListActiveForEvent(ctx context.Context, event string) ([]model.WebhookSubscription, error)
	GetSubscription(ctx context.Context, id string) (*model.WebhookSubscription, error)
}

type WebhookRepository struct {
	DB *sql.DB
}

const webhookColumns = `id, url, secret, events, headers, is_active, created_at`

func (r *WebhookRepository) ListActiveForEvent(ctx context.Context, event string) ([]model.WebhookSubscription, error) {
	query := `SELECT ` + webhookColumns + `
        FROM webhook_subscriptions
        WHERE is_active = true AND $1 = ANY(events)
        ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, event)
	if err != nil {
		return nil, fmt.Errorf("list webhooks for %s: %w", event, err)
	}
	defer rows.Close()

	subs := []model.WebhookSubscription{}
	for rows.Next() {
		sub, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// GetSubscription reads a subscription regardless of its active flag.
func (r *WebhookRepository) GetSubscription(ctx context.Context, id string) (*model.WebhookSubscription, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhook_subscriptions WHERE id = $1`
	sub, err := scanWebhook(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("webhook", id)
		}
		return nil, err
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(row rowScanner) (*model.WebhookSubscription, error) {
	var sub model.WebhookSubscription
	var headers []byte
	if err := row.Scan(&sub.ID, &sub.URL, &sub.Secret, pq.Array(&sub.Events), &headers, &sub.IsActive, &sub.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(headers, &sub.Headers); err != nil {
		return nil, fmt.Errorf("webhook %s headers: %w", sub.ID, err)
	}
	return &sub, nil
}

var _ WebhookRepositoryInterface = (*WebhookRepository)(nil)
