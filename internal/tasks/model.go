package tasks

import (
	"time"

	"github.com/taskora-labs/taskora/backend/internal/categories"
)

// Type distinguishes demand from supply listings.
type Type string

const (
	TypeServiceRequest Type = "SERVICE_REQUEST"
	TypeServiceOffer   Type = "SERVICE_OFFER"
)

// Valid reports whether the listing type is known.
func (t Type) Valid() bool {
	return t == TypeServiceRequest || t == TypeServiceOffer
}

// Status is the task lifecycle state. Reviews require DONE; responses
// require ACTIVE.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusPaused   Status = "PAUSED"
	StatusDone     Status = "DONE"
	StatusCanceled Status = "CANCELED"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusDone, StatusCanceled:
		return true
	}
	return false
}

// ValidTransitionTarget reports whether authors may move a task into this
// state directly. DRAFT is entered only at creation time.
func (s Status) ValidTransitionTarget() bool {
	switch s {
	case StatusActive, StatusPaused, StatusDone, StatusCanceled:
		return true
	}
	return false
}

// Task is a marketplace listing authored by a user under a category.
type Task struct {
	ID          string    `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	AuthorID    string    `gorm:"column:author_id;size:36;not null;index" json:"authorId"`
	CategoryID  string    `gorm:"column:category_id;size:36;not null;index" json:"categoryId"`
	Type        Type      `gorm:"column:type;size:32;not null" json:"type"`
	Title       string    `gorm:"column:title;size:140;not null" json:"title"`
	Description string    `gorm:"column:description;not null" json:"description"`
	BudgetMin   *int      `gorm:"column:budget_min" json:"budgetMin"`
	BudgetMax   *int      `gorm:"column:budget_max" json:"budgetMax"`
	Currency    string    `gorm:"column:currency;size:16;not null;default:USDT" json:"currency"`
	Status      Status    `gorm:"column:status;size:16;not null;default:ACTIVE;index" json:"status"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`

	Category        categories.Category         `gorm:"foreignKey:CategoryID" json:"category"`
	Specializations []categories.Specialization `gorm:"many2many:task_specializations" json:"specializations"`
	Attachments     []Attachment                `gorm:"foreignKey:TaskID" json:"attachments"`

	// ResponseCount is derived at query time, not stored.
	ResponseCount int64 `gorm:"-" json:"responseCount"`
}

// TableName exposes the table backing tasks.
func (Task) TableName() string {
	return "tasks"
}

// Attachment is a file reference uploaded through the presigning endpoint.
type Attachment struct {
	ID     string `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	TaskID string `gorm:"column:task_id;size:36;not null;index" json:"taskId"`
	URL    string `gorm:"column:url;size:512;not null" json:"url"`
	Mime   string `gorm:"column:mime;size:128;not null" json:"mime"`
}

// TableName exposes the table backing task attachments.
func (Attachment) TableName() string {
	return "task_attachments"
}
