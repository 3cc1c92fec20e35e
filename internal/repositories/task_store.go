package repositories

import (
	"context"
	"fmt"

	"task-tracker/backend/internal/models"

	"gorm.io/gorm"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// TaskStore persists tasks. Soft-deleted tasks are invisible to every method.
type TaskStore interface {
	Insert(ctx context.Context, draft models.TaskDraft) (models.Task, error)
	Get(ctx context.Context, id uint) (models.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	Update(ctx context.Context, id uint, update models.TaskUpdate) (models.Task, error)
	SoftDelete(ctx context.Context, id uint) error
	Health(ctx context.Context) error
}

// TaskFilter narrows List. The zero value matches every live task.
type TaskFilter struct {
	Completed  *bool
	Priority   *models.Priority
	ProjectID  *int64
	AssignedTo *string
}

func (f TaskFilter) IsZero() bool {
	return f.Completed == nil && f.Priority == nil && f.ProjectID == nil && f.AssignedTo == nil
}

func (f TaskFilter) Matches(t models.Task) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Priority != nil && (t.Priority == nil || *t.Priority != *f.Priority) {
		return false
	}
	if f.ProjectID != nil && (t.ProjectID == nil || *t.ProjectID != *f.ProjectID) {
		return false
	}
	if f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo) {
		return false
	}
	return true
}

// NewTaskStore picks the store implementation for driver. db is ignored for the memory driver.
func NewTaskStore(driver string, db *gorm.DB) (TaskStore, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryTaskStore(), nil
	case DriverPostgres, DriverSQLite:
		if db == nil {
			return nil, fmt.Errorf("store driver %q requires a database connection", driver)
		}
		store := NewGormTaskStore(db)
		if err := store.AutoMigrate(); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
