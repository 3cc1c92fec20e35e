package router

import (
	"log/slog"
	"time"

	"task-tracker/backend/internal/handlers"
	"task-tracker/backend/internal/middleware"
	"task-tracker/backend/internal/monitoring"
	"task-tracker/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	TaskService    services.TaskService
	Monitor        *monitoring.Monitor
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

// New builds the gin engine. Monitor and RateLimiter are optional.
func New(deps Deps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.RecoveryWithLog())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(cors.New(corsConfig(deps.AllowedOrigins)))
	if deps.Monitor != nil {
		r.Use(deps.Monitor.MetricsMiddleware())
	}

	if deps.Monitor != nil {
		r.GET("/health", deps.Monitor.HealthHandler())
		r.GET("/ready", deps.Monitor.ReadinessHandler())
		r.GET("/live", deps.Monitor.LivenessHandler())
		r.GET("/metrics", deps.Monitor.MetricsHandler())
	}

	taskHandler := handlers.NewTaskHandler(deps.TaskService)

	api := r.Group("/")
	if deps.RateLimiter != nil {
		api.Use(middleware.RateLimit(deps.RateLimiter))
	}
	api.GET("/", handlers.Root)
	api.GET("/tasks", taskHandler.GetTasks)
	api.POST("/tasks", taskHandler.CreateTask)
	api.GET("/tasks/:id", taskHandler.GetTaskByID)
	api.PUT("/tasks/:id", taskHandler.UpdateTask)
	api.DELETE("/tasks/:id", taskHandler.DeleteTask)

	return r
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}
