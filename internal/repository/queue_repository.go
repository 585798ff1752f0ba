package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

type QueueRepositoryInterface interface {
	Enqueue(ctx context.Context, event string, payload json.RawMessage) (*model.QueueItem, error)
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]model.QueueItem, error)
	RenewClaim(ctx context.Context, id int64, claimToken string, lease time.Duration) error
	MarkProcessed(ctx context.Context, id int64, claimToken string) error
	GetByID(ctx context.Context, id int64) (*model.QueueItem, error)
}

type QueueRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r *QueueRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Enqueue appends a domain event for the automation consumer.
func (r *QueueRepository) Enqueue(ctx context.Context, event string, payload json.RawMessage) (*model.QueueItem, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	item := &model.QueueItem{Event: event, Payload: payload}
	query := `
        INSERT INTO automation_queue (event, payload, processed, created_at)
        VALUES ($1, $2, false, $3)
        RETURNING id, created_at
    `
	err := r.DB.QueryRowContext(ctx, query, event, string(payload), r.now()).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", event, err)
	}
	return item, nil
}

// ClaimPending leases up to limit unprocessed items, oldest first. Rows
// locked by a concurrent claim are skipped, and a claim whose lease has run
// out can be taken over. The outer predicate is re-checked against the
// locked row so a lease renewed in the meantime is not stolen.
func (r *QueueRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]model.QueueItem, error) {
	now := r.now()
	token := uuid.NewString()
	query := `
        UPDATE automation_queue
        SET claim_token = $1, claimed_until = $2
        WHERE id IN (
            SELECT id FROM automation_queue
            WHERE processed = false
              AND (claimed_until IS NULL OR claimed_until < $3)
            ORDER BY created_at ASC, id ASC
            LIMIT $4
            FOR UPDATE SKIP LOCKED
        )
          AND processed = false
          AND (claimed_until IS NULL OR claimed_until < $3)
        RETURNING id, event, payload, processed, created_at, processed_at
    `
	rows, err := r.DB.QueryContext(ctx, query, token, now.Add(lease), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queue items: %w", err)
	}
	defer rows.Close()

	items := []model.QueueItem{}
	for rows.Next() {
		var item model.QueueItem
		var payload []byte
		if err := rows.Scan(&item.ID, &item.Event, &payload, &item.Processed, &item.CreatedAt, &item.ProcessedAt); err != nil {
			return nil, err
		}
		item.Payload = payload
		item.ClaimToken = token
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not keep the subquery order.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// RenewClaim pushes the lease of an item forward while the caller still holds
// its claim. An expired lease can be renewed as long as nobody reclaimed it.
func (r *QueueRepository) RenewClaim(ctx context.Context, id int64, claimToken string, lease time.Duration) error {
	query := `
        UPDATE automation_queue
        SET claimed_until = $1
        WHERE id = $2 AND claim_token = $3 AND processed = false
    `
	res, err := r.DB.ExecContext(ctx, query, r.now().Add(lease), id, claimToken)
	if err != nil {
		return fmt.Errorf("renew claim on queue item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue item %d: %w", id, appErrors.ErrClaimLost)
	}
	return nil
}

// MarkProcessed flips processed exactly once, and only for the claim holder.
func (r *QueueRepository) MarkProcessed(ctx context.Context, id int64, claimToken string) error {
	query := `
        UPDATE automation_queue
        SET processed = true, processed_at = $1, claimed_until = NULL
        WHERE id = $2 AND claim_token = $3 AND processed = false
    `
	res, err := r.DB.ExecContext(ctx, query, r.now(), id, claimToken)
	if err != nil {
		return fmt.Errorf("mark queue item %d processed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue item %d: %w", id, appErrors.ErrClaimLost)
	}
	return nil
}

func (r *QueueRepository) GetByID(ctx context.Context, id int64) (*model.QueueItem, error) {
	query := `
        SELECT id, event, payload, processed, created_at, processed_at
        FROM automation_queue WHERE id = $1
    `
	var item model.QueueItem
	var payload []byte
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.Event, &payload, &item.Processed, &item.CreatedAt, &item.ProcessedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("queue item", strconv.FormatInt(id, 10))
		}
		return nil, err
	}
	item.Payload = payload
	return &item, nil
}

var _ QueueRepositoryInterface = (*QueueRepository)(nil)
