package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"task-tracker/backend/internal/classifier"
	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/worker"
)

type EnrichmentOutcome int

const (
	EnrichmentDisabled EnrichmentOutcome = iota
	EnrichmentApplied
	EnrichmentNoPrediction
	EnrichmentUnavailable
	EnrichmentDeferred
	EnrichmentFailed
)

func (o EnrichmentOutcome) String() string {
	switch o {
	case EnrichmentApplied:
		return "applied"
	case EnrichmentNoPrediction:
		return "no_prediction"
	case EnrichmentUnavailable:
		return "unavailable"
	case EnrichmentDeferred:
		return "deferred"
	case EnrichmentFailed:
		return "failed"
	default:
		return "disabled"
	}
}

// EnrichmentResult reports what the post-create hook did. Task is set only
// when the outcome is EnrichmentApplied.
type EnrichmentResult struct {
	Outcome  EnrichmentOutcome
	Priority models.Priority
	Task     *models.Task
	Err      error
}

// Enricher is the post-create hook. Implementations report every failure
// through the result instead of returning an error.
type Enricher interface {
	Enrich(ctx context.Context, task models.Task) EnrichmentResult
}

type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Prediction, error)
}

type UpdateFunc func(ctx context.Context, id uint, update models.TaskUpdate) (models.Task, error)

// PriorityEnricher asks the classifier for a priority and stores it when the
// label is high or low.
type PriorityEnricher struct {
	classifier Classifier
	update     UpdateFunc
}

func NewPriorityEnricher(c Classifier, update UpdateFunc) *PriorityEnricher {
	return &PriorityEnricher{classifier: c, update: update}
}

func (e *PriorityEnricher) Enrich(ctx context.Context, task models.Task) EnrichmentResult {
	prediction, err := e.classifier.Classify(ctx, task.ClassifierText())
	if err != nil {
		return EnrichmentResult{Outcome: EnrichmentUnavailable, Err: err}
	}

	label, ok := prediction.Label()
	if !ok {
		return EnrichmentResult{Outcome: EnrichmentNoPrediction}
	}

	// the classifier already ran to completion; persist its answer even if the caller went away
	updated, err := e.update(context.WithoutCancel(ctx), task.ID, models.TaskUpdate{Priority: &label})
	if err != nil {
		return EnrichmentResult{Outcome: EnrichmentFailed, Priority: label, Err: err}
	}

	return EnrichmentResult{Outcome: EnrichmentApplied, Priority: label, Task: &updated}
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType worker.JobType, payload map[string]interface{}) (*worker.Job, error)
}

// QueuedEnricher defers classification to the background worker.
type QueuedEnricher struct {
	queue JobEnqueuer
}

func NewQueuedEnricher(queue JobEnqueuer) *QueuedEnricher {
	return &QueuedEnricher{queue: queue}
}

func (e *QueuedEnricher) Enrich(ctx context.Context, task models.Task) EnrichmentResult {
	_, err := e.queue.Enqueue(context.WithoutCancel(ctx), worker.JobTypePriorityEnrichment, map[string]interface{}{
		"task_id": task.ID,
	})
	if err != nil {
		return EnrichmentResult{Outcome: EnrichmentFailed, Err: err}
	}
	return EnrichmentResult{Outcome: EnrichmentDeferred}
}

// NewEnrichmentJobHandler runs enrich for queued tasks. Tasks deleted before
// the job runs are skipped; an unavailable classifier is not retried.
func NewEnrichmentJobHandler(tasks TaskService, enricher Enricher) worker.JobHandler {
	logger := slog.Default().With("component", "enrichment_job")

	return func(ctx context.Context, job *worker.Job) error {
		id, err := jobTaskID(job)
		if err != nil {
			return err
		}

		task, err := tasks.GetTaskByID(ctx, id)
		if errors.Is(err, models.ErrTaskNotFound) {
			logger.Info("task gone before enrichment", "task_id", id)
			return nil
		}
		if err != nil {
			return err
		}

		result := enricher.Enrich(ctx, task)
		logger.Info("priority enrichment finished", "task_id", id, "outcome", result.Outcome.String())

		if result.Outcome == EnrichmentFailed && !errors.Is(result.Err, models.ErrTaskNotFound) {
			return result.Err
		}
		return nil
	}
}

func jobTaskID(job *worker.Job) (uint, error) {
	raw, ok := job.Payload["task_id"]
	if !ok {
		return 0, fmt.Errorf("job %s has no task_id", job.ID)
	}

	switch v := raw.(type) {
	case float64:
		if v > 0 {
			return uint(v), nil
		}
	case json.Number:
		if n, err := strconv.ParseUint(v.String(), 10, 64); err == nil && n > 0 {
			return uint(n), nil
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			return uint(n), nil
		}
	case uint:
		if v > 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("job %s has invalid task_id %v", job.ID, raw)
}
