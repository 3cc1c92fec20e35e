package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/repositories"
	"task-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type createTaskRequest struct {
	Title       string  `json:"title" binding:"required,min=1,max=200"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
	AssignedTo  *string `json:"assigned_to" binding:"omitempty,max=50"`
	ProjectID   *int64  `json:"project_id"`
}

type updateTaskRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
	Priority    *string `json:"priority" binding:"omitempty,oneof=low high"`
	AssignedTo  *string `json:"assigned_to" binding:"omitempty,max=50"`
	ProjectID   *int64  `json:"project_id"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type TaskHandler struct {
	taskService services.TaskService
	logger      *slog.Logger
}

func NewTaskHandler(taskService services.TaskService) *TaskHandler {
	registerJSONFieldNames()
	return &TaskHandler{
		taskService: taskService,
		logger:      slog.Default().With("component", "task_handler"),
	}
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), models.TaskDraft{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
		AssignedTo:  req.AssignedTo,
		ProjectID:   req.ProjectID,
	})
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	filter, err := parseTaskFilter(c)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}

	tasks, err := h.taskService.GetTasks(c.Request.Context(), filter)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTaskByID(c.Request.Context(), id)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err)
		return
	}

	update := models.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
		AssignedTo:  req.AssignedTo,
		ProjectID:   req.ProjectID,
	}
	if req.Priority != nil {
		p := models.Priority(*req.Priority)
		update.Priority = &p
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), id, update)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), id); err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Root describes the service.
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "task-tracker",
		"endpoints": []string{
			"GET /tasks",
			"POST /tasks",
			"GET /tasks/:id",
			"PUT /tasks/:id",
			"DELETE /tasks/:id",
			"GET /health",
		},
	})
}

// parseTaskID writes a 404 for ids that cannot name a task.
func parseTaskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, strconv.IntSize)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return 0, false
	}
	return uint(id), true
}

func parseTaskFilter(c *gin.Context) (repositories.TaskFilter, error) {
	var filter repositories.TaskFilter

	if raw, ok := c.GetQuery("completed"); ok {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, &models.ValidationError{Field: "completed", Message: "completed must be true or false"}
		}
		filter.Completed = &completed
	}
	if raw, ok := c.GetQuery("priority"); ok {
		priority, valid := models.ParsePriority(raw)
		if !valid {
			return filter, &models.ValidationError{Field: "priority", Message: "priority must be one of: low, high"}
		}
		filter.Priority = &priority
	}
	if raw, ok := c.GetQuery("project_id"); ok {
		projectID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, &models.ValidationError{Field: "project_id", Message: "project_id must be an integer"}
		}
		filter.ProjectID = &projectID
	}
	if raw, ok := c.GetQuery("assigned_to"); ok {
		filter.AssignedTo = &raw
	}
	return filter, nil
}

func handleBindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make([]fieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			details = append(details, fieldError{Field: fe.Field(), Message: validationMessage(fe)})
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": details})
		return
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation failed",
			"details": []fieldError{{Field: typeErr.Field, Message: "must be a " + typeErr.Type.String()}},
		})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
}

func (h *TaskHandler) handleTaskError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation failed",
			"details": []fieldError{{Field: validationErr.Field, Message: validationErr.Message}},
		})
	default:
		h.logger.Error("task request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process task request"})
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return fe.Field() + " is invalid"
	}
}

var registerOnce sync.Once

// registerJSONFieldNames makes validator report json names instead of Go field names.
func registerJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}
