package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
	"github.com/unclebandit/wacrm-backend/internal/model"
)

type LeadRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

const leadColumns = `id, name, phone, email, company, stage_id, temperature, owner_id, created_at, updated_at`

func (r *LeadRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *LeadRepository) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	lead, err := r.scanOne(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, appErrors.NewNotFound("lead", id)
	}
	return lead, nil
}

// FindByPhone matches on digits only. It returns nil when no lead has the number.
func (r *LeadRepository) FindByPhone(ctx context.Context, phone string) (*model.Lead, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return nil, nil
	}
	query := `SELECT ` + leadColumns + `
        FROM leads
        WHERE regexp_replace(phone, '\D', '', 'g') = $1
        ORDER BY created_at ASC
        LIMIT 1`
	return r.scanOne(ctx, query, digits)
}

func (r *LeadRepository) UpdateStage(ctx context.Context, leadID, stageID string) error {
	return r.update(ctx, leadID, `UPDATE leads SET stage_id = $1, updated_at = $2 WHERE id = $3`, stageID)
}

func (r *LeadRepository) UpdateTemperature(ctx context.Context, leadID, temperature string) error {
	return r.update(ctx, leadID, `UPDATE leads SET temperature = $1, updated_at = $2 WHERE id = $3`, temperature)
}

func (r *LeadRepository) UpdateOwner(ctx context.Context, leadID, userID string) error {
	return r.update(ctx, leadID, `UPDATE leads SET owner_id = $1, updated_at = $2 WHERE id = $3`, userID)
}

func (r *LeadRepository) update(ctx context.Context, leadID, query, value string) error {
	res, err := r.DB.ExecContext(ctx, query, value, r.now(), leadID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewNotFound("lead", leadID)
	}
	return nil
}

func (r *LeadRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Lead, error) {
	var l model.Lead
	var email, company sql.NullString
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&l.ID, &l.Name, &l.Phone, &email, &company, &l.StageID, &l.Temperature, &l.OwnerID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	l.Email = email.String
	l.Company = company.String
	return &l, nil
}
