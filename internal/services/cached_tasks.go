package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"task-tracker/backend/internal/cache"
	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/repositories"
)

const (
	taskCacheTTL = 30 * time.Minute
	listCacheTTL = 10 * time.Minute

	allTasksKey     = "tasks:all"
	listKeysPattern = "tasks:*"
	taskKeyFormat   = "task:%d"
)

// CachedTaskService is a read-through cache in front of a TaskService. Only
// unfiltered listings are cached; every mutation drops the affected keys.
type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	logger      *slog.Logger
}

func NewCachedTaskService(taskService TaskService, cacheInstance cache.Cache) *CachedTaskService {
	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
		logger:      slog.Default().With("component", "task_cache"),
	}
}

func (s *CachedTaskService) CreateTask(ctx context.Context, draft models.TaskDraft) (models.Task, error) {
	task, err := s.taskService.CreateTask(ctx, draft)
	if err != nil {
		return task, err
	}

	// not cached here: a queued enrichment may already have updated the row
	s.invalidate(taskKey(task.ID))

	return task, nil
}

func (s *CachedTaskService) GetTaskByID(ctx context.Context, id uint) (models.Task, error) {
	cacheKey := taskKey(id)

	var cachedTask models.Task
	if err := s.cache.Get(cacheKey, &cachedTask); err == nil {
		return cachedTask, nil
	}

	task, err := s.taskService.GetTaskByID(ctx, id)
	if err != nil {
		return task, err
	}

	s.set(cacheKey, task, taskCacheTTL)
	return task, nil
}

func (s *CachedTaskService) GetTasks(ctx context.Context, filter repositories.TaskFilter) ([]models.Task, error) {
	if !filter.IsZero() {
		return s.taskService.GetTasks(ctx, filter)
	}

	var cachedTasks []models.Task
	if err := s.cache.Get(allTasksKey, &cachedTasks); err == nil {
		return cachedTasks, nil
	}

	tasks, err := s.taskService.GetTasks(ctx, filter)
	if err != nil {
		return tasks, err
	}

	s.set(allTasksKey, tasks, listCacheTTL)
	return tasks, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, id uint, update models.TaskUpdate) (models.Task, error) {
	task, err := s.taskService.UpdateTask(ctx, id, update)
	if err != nil {
		return task, err
	}

	s.invalidate(taskKey(id))
	return task, nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, id uint) error {
	if err := s.taskService.DeleteTask(ctx, id); err != nil {
		return err
	}

	s.invalidate(taskKey(id))
	return nil
}

func (s *CachedTaskService) GetCacheStats() map[string]interface{} {
	return s.cache.Stats()
}

func (s *CachedTaskService) set(key string, value interface{}, ttl time.Duration) {
	if err := s.cache.Set(key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// invalidate drops the task's own entry and every cached listing.
func (s *CachedTaskService) invalidate(key string) {
	if err := s.cache.Delete(key); err != nil {
		s.logger.Warn("cache invalidation failed", "key", key, "error", err)
	}
	if err := s.cache.DeletePattern(listKeysPattern); err != nil {
		s.logger.Warn("cache invalidation failed", "pattern", listKeysPattern, "error", err)
	}
}

func taskKey(id uint) string {
	return fmt.Sprintf(taskKeyFormat, id)
}
