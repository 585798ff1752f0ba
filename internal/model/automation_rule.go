// internal/model/automation_rule.go
package model

import "time"

type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
)

// Condition is a single predicate over event data. Field is a dot path.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

type Action struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

type AutomationRule struct {
	ID         string      `db:"id" json:"id"`
	Name       string      `db:"name" json:"name"`
	Trigger    string      `db:"trigger" json:"trigger"`
	Conditions []Condition `db:"conditions" json:"conditions"`
	Actions    []Action    `db:"actions" json:"actions"`
	IsActive   bool        `db:"is_active" json:"is_active"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time  `db:"updated_at" json:"updated_at,omitempty"`
}

// ActionResult is the outcome of one action inside a rule run.
type ActionResult struct {
	Type    string         `json:"type"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Output  map[string]any `json:"output,omitempty"`
}

// RuleResult is recorded for every rule evaluated against a queue item.
type RuleResult struct {
	RuleID   string         `json:"rule_id"`
	RuleName string         `json:"rule_name"`
	Matched  bool           `json:"matched"`
	Executed bool           `json:"executed"`
	Results  []ActionResult `json:"results"`
}

// AutomationRun is the persisted form of a RuleResult.
type AutomationRun struct {
	ID          int64          `db:"id" json:"id"`
	QueueItemID int64          `db:"queue_item_id" json:"queue_item_id"`
	RuleID      string         `db:"rule_id" json:"rule_id"`
	Event       string         `db:"event" json:"event"`
	Matched     bool           `db:"matched" json:"matched"`
	Executed    bool           `db:"executed" json:"executed"`
	Results     []ActionResult `db:"results" json:"results"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
