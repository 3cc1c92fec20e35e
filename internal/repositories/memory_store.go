package repositories

import (
	"context"
	"sync"
	"time"

	"task-tracker/backend/internal/models"

	"gorm.io/gorm"
)

type MemoryTaskStore struct {
	mu     sync.RWMutex
	tasks  map[uint]*models.Task
	order  []uint
	nextID uint
	now    func() time.Time
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks:  make(map[uint]*models.Task),
		nextID: 1,
		now:    time.Now,
	}
}

func (s *MemoryTaskStore) Insert(_ context.Context, draft models.TaskDraft) (models.Task, error) {
	if err := draft.Validate(); err != nil {
		return models.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task := models.NewTask(draft, s.now())
	task.ID = s.nextID
	s.nextID++

	s.tasks[task.ID] = &task
	s.order = append(s.order, task.ID)
	return task, nil
}

func (s *MemoryTaskStore) Get(_ context.Context, id uint) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.live(id)
	if !ok {
		return models.Task{}, models.ErrTaskNotFound
	}
	return *task, nil
}

func (s *MemoryTaskStore) List(_ context.Context, filter TaskFilter) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		task := s.tasks[id]
		if task.IsDeleted() || !filter.Matches(*task) {
			continue
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

func (s *MemoryTaskStore) Update(_ context.Context, id uint, update models.TaskUpdate) (models.Task, error) {
	if err := update.Validate(); err != nil {
		return models.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.live(id)
	if !ok {
		return models.Task{}, models.ErrTaskNotFound
	}

	updated := *task
	updated.Apply(update, s.now())
	s.tasks[id] = &updated
	return updated, nil
}

func (s *MemoryTaskStore) SoftDelete(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.live(id)
	if !ok {
		return models.ErrTaskNotFound
	}

	deleted := *task
	deleted.DeletedAt = gorm.DeletedAt{Time: s.now(), Valid: true}
	s.tasks[id] = &deleted
	return nil
}

func (s *MemoryTaskStore) Health(context.Context) error {
	return nil
}

// live must be called with s.mu held.
func (s *MemoryTaskStore) live(id uint) (*models.Task, bool) {
	task, ok := s.tasks[id]
	if !ok || task.IsDeleted() {
		return nil, false
	}
	return task, true
}
