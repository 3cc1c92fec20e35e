package models

import (
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

const MaxTitleLength = 200

type Status string

const (
	StatusTodo Status = "todo"
	StatusDone Status = "done"
)

type Priority string

const (
	PriorityLow  Priority = "low"
	PriorityHigh Priority = "high"
)

// ParsePriority accepts only the two values the classifier is allowed to set.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityHigh:
		return Priority(s), true
	default:
		return "", false
	}
}

type Task struct {
	ID          uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Title       string         `json:"title" gorm:"size:200;not null"`
	Description *string        `json:"description"`
	Completed   bool           `json:"completed" gorm:"not null;default:false"`
	Status      Status         `json:"status" gorm:"size:20;not null;default:'todo'"`
	Priority    *Priority      `json:"priority" gorm:"size:10"`
	AssignedTo  *string        `json:"assigned_to" gorm:"size:50"`
	ProjectID   *int64         `json:"project_id" gorm:"index"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskDraft is the validated input for a new task.
type TaskDraft struct {
	Title       string
	Description *string
	Completed   bool
	AssignedTo  *string
	ProjectID   *int64
}

// TaskUpdate carries only the fields present in a partial update; nil means untouched.
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *Priority
	AssignedTo  *string
	ProjectID   *int64
}

func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Completed == nil &&
		u.Priority == nil && u.AssignedTo == nil && u.ProjectID == nil
}

func DeriveStatus(completed bool) Status {
	if completed {
		return StatusDone
	}
	return StatusTodo
}

func ValidateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n == 0 {
		return &ValidationError{Field: "title", Message: "title must not be empty"}
	}
	if n > MaxTitleLength {
		return &ValidationError{Field: "title", Message: "title must be at most 200 characters"}
	}
	return nil
}

func (d TaskDraft) Validate() error {
	return ValidateTitle(d.Title)
}

func (u TaskUpdate) Validate() error {
	if u.Title != nil {
		if err := ValidateTitle(*u.Title); err != nil {
			return err
		}
	}
	if u.Priority != nil {
		if _, ok := ParsePriority(string(*u.Priority)); !ok {
			return &ValidationError{Field: "priority", Message: "priority must be one of: low, high"}
		}
	}
	return nil
}

// NewTask builds the record for a draft; the store assigns ID.
func NewTask(d TaskDraft, now time.Time) Task {
	return Task{
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		Status:      DeriveStatus(d.Completed),
		AssignedTo:  d.AssignedTo,
		ProjectID:   d.ProjectID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply merges u into t. Status is recomputed whenever Completed is present.
func (t *Task) Apply(u TaskUpdate, now time.Time) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = u.Description
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
		t.Status = DeriveStatus(t.Completed)
	}
	if u.Priority != nil {
		p := *u.Priority
		t.Priority = &p
	}
	if u.AssignedTo != nil {
		t.AssignedTo = u.AssignedTo
	}
	if u.ProjectID != nil {
		t.ProjectID = u.ProjectID
	}
	t.UpdatedAt = now
}

func (t Task) IsDeleted() bool {
	return t.DeletedAt.Valid
}

// ClassifierText is the text sent for priority prediction.
func (t Task) ClassifierText() string {
	if t.Description != nil && *t.Description != "" {
		return *t.Description
	}
	return t.Title
}
