// internal/model/lead.go
package model

import "time"

type Lead struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Phone       string     `db:"phone" json:"phone"`
	Email       string     `db:"email" json:"email"`
	Company     string     `db:"company" json:"company"`
	StageID     *string    `db:"stage_id" json:"stage_id,omitempty"`
	Temperature string     `db:"temperature" json:"temperature"`
	OwnerID     *string    `db:"owner_id" json:"owner_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

type Task struct {
	ID          string    `db:"id" json:"id"`
	LeadID      *string   `db:"lead_id" json:"lead_id,omitempty"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	AssignedTo  *string   `db:"assigned_to" json:"assigned_to,omitempty"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	Link      string    `db:"link" json:"link"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
