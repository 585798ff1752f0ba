package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/unclebandit/wacrm-backend/internal/model"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type AutomationRuleRepositoryInterface interface {
	ListActiveByTrigger(ctx context.Context, trigger string) ([]model.AutomationRule, error)
}

type AutomationRuleRepository struct {
	DB *sql.DB
}

// ListActiveByTrigger returns the active rules listening on trigger, oldest first.
func (r *AutomationRuleRepository) ListActiveByTrigger(ctx context.Context, trigger string) ([]model.AutomationRule, error) {
	query := `
        SELECT id, name, trigger, conditions, actions, is_active, created_at, updated_at
        FROM automation_rules
        WHERE trigger = $1 AND is_active = true
        ORDER BY created_at ASC
    `
	rows, err := r.DB.QueryContext(ctx, query, trigger)
	if err != nil {
		return nil, fmt.Errorf("list rules for %s: %w", trigger, err)
	}
	defer rows.Close()

	rules := []model.AutomationRule{}
	for rows.Next() {
		var rule model.AutomationRule
		var conditions, actions []byte
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Trigger, &conditions, &actions, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("rule %s conditions: %w", rule.ID, err)
		}
		if err := decodeJSONColumn(actions, &rule.Actions); err != nil {
			return nil, fmt.Errorf("rule %s actions: %w", rule.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

type AutomationRunRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

// Record stores the outcome of one rule against one queue item.
func (r *AutomationRunRepository) Record(ctx context.Context, run *model.AutomationRun) error {
	results, err := json.Marshal(run.Results)
	if err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
		if r.Now != nil {
			run.CreatedAt = r.Now()
		}
	}
	query := `
        INSERT INTO automation_runs (queue_item_id, rule_id, event, matched, executed, results, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		run.QueueItemID, run.RuleID, run.Event, run.Matched, run.Executed, string(results), run.CreatedAt,
	).Scan(&run.ID)
}

// RunFilter narrows ListRuns. Zero values are ignored.
type RunFilter struct {
	RuleID      string
	QueueItemID int64
	OnlyFailed  bool
	Limit       int
}

func (r *AutomationRunRepository) ListRuns(ctx context.Context, f RunFilter) ([]model.AutomationRun, error) {
	q := psql.Select("id", "queue_item_id", "rule_id", "event", "matched", "executed", "results", "created_at").
		From("automation_runs").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limitOrDefault(f.Limit)))
	if f.RuleID != "" {
		q = q.Where(sq.Eq{"rule_id": f.RuleID})
	}
	if f.QueueItemID != 0 {
		q = q.Where(sq.Eq{"queue_item_id": f.QueueItemID})
	}
	if f.OnlyFailed {
		q = q.Where(sq.Eq{"matched": true, "executed": false})
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

	runs := []model.AutomationRun{}
	for rows.Next() {
		var run model.AutomationRun
		var results []byte
		if err := rows.Scan(&run.ID, &run.QueueItemID, &run.RuleID, &run.Event, &run.Matched, &run.Executed, &results, &run.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(results, &run.Results); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func decodeJSONColumn(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func limitOrDefault(limit int) int {
	if limit < 1 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
