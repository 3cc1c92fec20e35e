package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-tracker/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaskStore keeps tasks in a relational database. Soft deletion relies on
// gorm.DeletedAt, which scopes every query to live rows.
type GormTaskStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormTaskStore(db *gorm.DB) *GormTaskStore {
	return &GormTaskStore{db: db, now: time.Now}
}

func (s *GormTaskStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&models.Task{}); err != nil {
		return fmt.Errorf("failed to migrate tasks table: %w", err)
	}
	return nil
}

func (s *GormTaskStore) Insert(ctx context.Context, draft models.TaskDraft) (models.Task, error) {
	if err := draft.Validate(); err != nil {
		return models.Task{}, err
	}

	task := models.NewTask(draft, s.now())
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return models.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return task, nil
}

func (s *GormTaskStore) Get(ctx context.Context, id uint) (models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return models.Task{}, mapError(err)
	}
	return task, nil
}

func (s *GormTaskStore) List(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	q := s.db.WithContext(ctx).Model(&models.Task{})
	if filter.Completed != nil {
		q = q.Where("completed = ?", *filter.Completed)
	}
	if filter.Priority != nil {
		q = q.Where("priority = ?", *filter.Priority)
	}
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.AssignedTo != nil {
		q = q.Where("assigned_to = ?", *filter.AssignedTo)
	}

	tasks := []models.Task{}
	if err := q.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *GormTaskStore) Update(ctx context.Context, id uint, update models.TaskUpdate) (models.Task, error) {
	if err := update.Validate(); err != nil {
		return models.Task{}, err
	}

	var task models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == DriverPostgres {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&task, id).Error; err != nil {
			return mapError(err)
		}

		task.Apply(update, s.now())
		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("failed to update task %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *GormTaskStore) SoftDelete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Task{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}

func (s *GormTaskStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func mapError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrTaskNotFound
	}
	return err
}
