package services

import (
	"context"
	"fmt"
	"log/slog"

	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/repositories"
)

type TaskService interface {
	CreateTask(ctx context.Context, draft models.TaskDraft) (models.Task, error)
	GetTaskByID(ctx context.Context, id uint) (models.Task, error)
	GetTasks(ctx context.Context, filter repositories.TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, id uint, update models.TaskUpdate) (models.Task, error)
	DeleteTask(ctx context.Context, id uint) error
}

type TaskServiceImpl struct {
	store    repositories.TaskStore
	enricher Enricher
	logger   *slog.Logger
}

// NewTaskService wires the store with an optional post-create enricher.
func NewTaskService(store repositories.TaskStore, enricher Enricher) *TaskServiceImpl {
	return &TaskServiceImpl{
		store:    store,
		enricher: enricher,
		logger:   slog.Default().With("component", "task_service"),
	}
}

// CreateTask persists the draft and then runs enrichment. Enrichment can
// never fail the creation; the returned task carries the priority only when
// it was applied before returning.
func (s *TaskServiceImpl) CreateTask(ctx context.Context, draft models.TaskDraft) (models.Task, error) {
	if err := draft.Validate(); err != nil {
		return models.Task{}, err
	}

	task, err := s.store.Insert(ctx, draft)
	if err != nil {
		return models.Task{}, err
	}

	result := s.enrich(ctx, task)
	s.logEnrichment(task.ID, result)

	if result.Outcome == EnrichmentApplied && result.Task != nil {
		return *result.Task, nil
	}
	return task, nil
}

func (s *TaskServiceImpl) GetTaskByID(ctx context.Context, id uint) (models.Task, error) {
	return s.store.Get(ctx, id)
}

func (s *TaskServiceImpl) GetTasks(ctx context.Context, filter repositories.TaskFilter) ([]models.Task, error) {
	return s.store.List(ctx, filter)
}

func (s *TaskServiceImpl) UpdateTask(ctx context.Context, id uint, update models.TaskUpdate) (models.Task, error) {
	if err := update.Validate(); err != nil {
		return models.Task{}, err
	}
	// nothing to merge: answer with the stored task and leave updated_at alone
	if update.IsEmpty() {
		return s.store.Get(ctx, id)
	}
	return s.store.Update(ctx, id, update)
}

func (s *TaskServiceImpl) DeleteTask(ctx context.Context, id uint) error {
	return s.store.SoftDelete(ctx, id)
}

func (s *TaskServiceImpl) enrich(ctx context.Context, task models.Task) (result EnrichmentResult) {
	if s.enricher == nil {
		return EnrichmentResult{Outcome: EnrichmentDisabled}
	}

	defer func() {
		if r := recover(); r != nil {
			result = EnrichmentResult{
				Outcome: EnrichmentFailed,
				Err:     fmt.Errorf("enricher panicked: %v", r),
			}
		}
	}()

	return s.enricher.Enrich(ctx, task)
}

func (s *TaskServiceImpl) logEnrichment(taskID uint, result EnrichmentResult) {
	attrs := []any{"task_id", taskID, "outcome", result.Outcome.String()}
	if result.Priority != "" {
		attrs = append(attrs, "priority", result.Priority)
	}

	switch result.Outcome {
	case EnrichmentFailed:
		s.logger.Error("priority enrichment failed", append(attrs, "error", result.Err)...)
	case EnrichmentUnavailable:
		s.logger.Warn("priority classifier unavailable", attrs...)
	default:
		s.logger.Debug("priority enrichment finished", attrs...)
	}
}
