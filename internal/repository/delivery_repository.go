package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/unclebandit/wacrm-backend/internal/model"
)

// DeliveryRepository persists webhook deliveries and their attempt log.
type DeliveryRepository struct {
	DB *sql.DB
}

const deliveryColumns = `id, webhook_id, event, payload, status, attempts, next_attempt_at, last_status_code, last_error, created_at, completed_at`

// CreateDelivery inserts a pending delivery held by the caller until claimedUntil.
func (r *DeliveryRepository) CreateDelivery(ctx context.Context, d *model.WebhookDelivery, claimedUntil time.Time) error {
	query := `
        INSERT INTO webhook_deliveries
            (id, webhook_id, event, payload, status, attempts, next_attempt_at, claimed_until, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.DB.ExecContext(ctx, query,
		d.ID, d.WebhookID, d.Event, string(d.Payload), d.Status, d.Attempts, d.NextAttemptAt, claimedUntil, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create delivery %s: %w", d.ID, err)
	}
	return nil
}

// RecordAttempt appends the attempt row and moves the delivery to its new
// state in one transaction. Attempt rows are never updated afterwards.
func (r *DeliveryRepository) RecordAttempt(ctx context.Context, d *model.WebhookDelivery, a *model.DeliveryAttempt) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert := `
        INSERT INTO webhook_delivery_attempts
            (delivery_id, webhook_id, event, payload, attempt, response_status, response_body, status, error, duration_ms, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id
    `
	err = tx.QueryRowContext(ctx, insert,
		a.DeliveryID, a.WebhookID, a.Event, string(a.Payload), a.Attempt, a.ResponseStatus,
		a.ResponseBody, a.Status, a.Error, a.DurationMS, a.CompletedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("append attempt %d for %s: %w", a.Attempt, a.DeliveryID, err)
	}

	update := `
        UPDATE webhook_deliveries
        SET status = $1, attempts = $2, next_attempt_at = $3, last_status_code = $4,
            last_error = $5, completed_at = $6, claimed_until = NULL
        WHERE id = $7
    `
	_, err = tx.ExecContext(ctx, update,
		d.Status, d.Attempts, d.NextAttemptAt, d.LastStatusCode, d.LastError, d.CompletedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery %s: %w", d.ID, err)
	}
	return tx.Commit()
}

// ClaimDue leases deliveries whose next attempt is due. Concurrent
// schedulers skip each other's rows.
func (r *DeliveryRepository) ClaimDue(ctx context.Context, now time.Time, limit int, claimedUntil time.Time) ([]model.WebhookDelivery, error) {
	query := `
        UPDATE webhook_deliveries
        SET claimed_until = $1
        WHERE id IN (
            SELECT id FROM webhook_deliveries
            WHERE status IN ('pending', 'retrying')
              AND next_attempt_at <= $2
              AND (claimed_until IS NULL OR claimed_until < $2)
            ORDER BY next_attempt_at ASC
            LIMIT $3
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + deliveryColumns
	rows, err := r.DB.QueryContext(ctx, query, claimedUntil, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []model.WebhookDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

// Abandon closes a delivery without another attempt.
func (r *DeliveryRepository) Abandon(ctx context.Context, id, reason string, at time.Time) error {
	query := `
        UPDATE webhook_deliveries
        SET status = 'failed', last_error = $1, completed_at = $2, next_attempt_at = NULL, claimed_until = NULL
        WHERE id = $3
    `
	_, err := r.DB.ExecContext(ctx, query, reason, at, id)
	return err
}

// DeliveryFilter narrows the delivery log view.
type DeliveryFilter struct {
	WebhookID string
	Event     string
	Status    model.DeliveryStatus
	Limit     int
	Offset    int
}

func (r *DeliveryRepository) ListDeliveries(ctx context.Context, f DeliveryFilter) ([]model.WebhookDelivery, error) {
	q := psql.Select(deliveryColumns).
		From("webhook_deliveries").
		OrderBy("created_at DESC").
		Limit(uint64(limitOrDefault(f.Limit))).
		Offset(uint64(max(f.Offset, 0)))
	if f.WebhookID != "" {
		q = q.Where(sq.Eq{"webhook_id": f.WebhookID})
	}
	if f.Event != "" {
		q = q.Where(sq.Eq{"event": f.Event})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []model.WebhookDelivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

// ListAttempts returns the attempt log of one delivery, first attempt first.
func (r *DeliveryRepository) ListAttempts(ctx context.Context, deliveryID string) ([]model.DeliveryAttempt, error) {
	query, args, err := psql.
		Select("id", "delivery_id", "webhook_id", "event", "payload", "attempt", "response_status",
			"response_body", "status", "error", "duration_ms", "completed_at").
		From("webhook_delivery_attempts").
		Where(sq.Eq{"delivery_id": deliveryID}).
		OrderBy("attempt ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []model.DeliveryAttempt{}
	for rows.Next() {
		var a model.DeliveryAttempt
		var payload []byte
		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.WebhookID, &a.Event, &payload, &a.Attempt, &a.ResponseStatus,
			&a.ResponseBody, &a.Status, &a.Error, &a.DurationMS, &a.CompletedAt); err != nil {
			return nil, err
		}
		a.Payload = payload
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanDelivery(row rowScanner) (*model.WebhookDelivery, error) {
	var d model.WebhookDelivery
	var payload []byte
	var lastError sql.NullString
	var lastStatus sql.NullInt64
	if err := row.Scan(&d.ID, &d.WebhookID, &d.Event, &payload, &d.Status, &d.Attempts, &d.NextAttemptAt,
		&lastStatus, &lastError, &d.CreatedAt, &d.CompletedAt); err != nil {
		return nil, err
	}
	d.Payload = payload
	d.LastError = lastError.String
	d.LastStatusCode = int(lastStatus.Int64)
	return &d, nil
}
