package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/wacrm-backend/internal/model"
)

type TagRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r *TagRepository) HasTag(ctx context.Context, leadID, tagID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM lead_tags WHERE lead_id = $1 AND tag_id = $2)`,
		leadID, tagID,
	).Scan(&exists)
	return exists, err
}

// AttachTag is a no-op when the tag is already attached.
func (r *TagRepository) AttachTag(ctx context.Context, leadID, tagID string) error {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO lead_tags (lead_id, tag_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (lead_id, tag_id) DO NOTHING`,
		leadID, tagID, now,
	)
	if err != nil {
		return fmt.Errorf("attach tag %s to %s: %w", tagID, leadID, err)
	}
	return nil
}

func (r *TagRepository) DetachTag(ctx context.Context, leadID, tagID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM lead_tags WHERE lead_id = $1 AND tag_id = $2`, leadID, tagID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type TaskRepository struct {
	DB *sql.DB
}

func (r *TaskRepository) CreateTask(ctx context.Context, t *model.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `
        INSERT INTO tasks (id, lead_id, title, description, assigned_to, due_date, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.DB.ExecContext(ctx, query,
		t.ID, t.LeadID, t.Title, t.Description, t.AssignedTo, t.DueDate, t.Status, t.CreatedAt,
	)
	return err
}

type NotificationRepository struct {
	DB *sql.DB
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	query := `
        INSERT INTO notifications (id, user_id, title, body, link, read, created_at)
        VALUES ($1, $2, $3, $4, $5, false, $6)
    `
	_, err := r.DB.ExecContext(ctx, query, n.ID, n.UserID, n.Title, n.Body, n.Link, n.CreatedAt)
	return err
}
