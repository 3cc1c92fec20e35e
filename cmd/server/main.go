package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"task-tracker/backend/internal/cache"
	"task-tracker/backend/internal/classifier"
	"task-tracker/backend/internal/config"
	"task-tracker/backend/internal/database"
	"task-tracker/backend/internal/logger"
	"task-tracker/backend/internal/middleware"
	"task-tracker/backend/internal/monitoring"
	"task-tracker/backend/internal/repositories"
	"task-tracker/backend/internal/router"
	"task-tracker/backend/internal/services"
	"task-tracker/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Log.Level)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := app.run(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

type application struct {
	cfg         *config.Config
	logger      *slog.Logger
	handler     http.Handler
	taskService services.TaskService
	pool        *database.DatabasePool
	redisClient *redis.Client
	worker      *worker.Worker
}

func newApp(cfg *config.Config, log *slog.Logger) (_ *application, err error) {
	app := &application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	monitor := monitoring.NewMonitor()

	store, err := app.openStore()
	if err != nil {
		return nil, err
	}
	monitor.RegisterHealthCheck("store", true, store.Health)
	if app.pool != nil {
		pool := app.pool
		monitor.RegisterStats("database", func(context.Context) interface{} { return pool.Stats() })
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		app.redisClient = cache.NewRedisClient(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		redisCache = cache.NewRedisCacheFromClient(app.redisClient)
		monitor.RegisterHealthCheck("redis", true, redisCache.Health)
	}

	classifierClient := classifier.NewClient(classifier.Config{
		URL:     cfg.Classifier.URL,
		Timeout: cfg.Classifier.Timeout,
		Breaker: &classifier.BreakerConfig{
			MaxFailures:      cfg.Classifier.BreakerMaxFailures,
			Timeout:          cfg.Classifier.BreakerTimeout,
			HalfOpenMaxCalls: 1,
		},
	})
	monitor.RegisterHealthCheck("classifier", false, classifierClient.Health)
	monitor.RegisterStats("classifier", func(context.Context) interface{} { return classifierClient.Stats() })

	var (
		enricher services.Enricher
		jobQueue *worker.JobQueue
	)
	switch cfg.Enrichment.Mode {
	case config.EnrichmentSync:
		enricher = services.NewPriorityEnricher(classifierClient, store.Update)
	case config.EnrichmentAsync:
		jobQueue = worker.NewJobQueue(app.redisClient)
		monitor.RegisterHealthCheck("job_queue", true, jobQueue.Health)
		enricher = services.NewQueuedEnricher(jobQueue)
	}

	var taskService services.TaskService = services.NewTaskService(store, enricher)
	if cfg.Cache.Enabled {
		cached := services.NewCachedTaskService(taskService, cache.NewMultiLevelCache(redisCache))
		monitor.RegisterStats("cache", func(context.Context) interface{} { return cached.GetCacheStats() })
		taskService = cached
	}
	app.taskService = taskService

	if jobQueue != nil {
		app.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  app.redisClient,
			PollInterval: cfg.Worker.PollInterval,
			JobTimeout:   cfg.Worker.JobTimeout,
			RetryBase:    cfg.Worker.RetryBase,
		})
		app.worker.RegisterHandler(worker.JobTypePriorityEnrichment,
			services.NewEnrichmentJobHandler(taskService, services.NewPriorityEnricher(classifierClient, taskService.UpdateTask)))

		monitor.RegisterStats("queue", func(ctx context.Context) interface{} {
			sizes := make(map[string]interface{})
			for _, q := range []string{worker.DefaultQueue, worker.RetryQueue, worker.DeadQueue} {
				size, err := jobQueue.GetQueueSize(ctx, q)
				if err != nil {
					sizes[q] = err.Error()
					continue
				}
				sizes[q] = size
			}
			return sizes
		})
	}

	deps := router.Deps{
		TaskService:    taskService,
		Monitor:        monitor,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: float64(cfg.RateLimit.RequestsPerMin) / 60,
			Burst:             cfg.RateLimit.BurstSize,
			IdleTTL:           cfg.RateLimit.CleanupInterval,
		})
	}
	app.handler = router.New(deps)

	log.Info("application initialized",
		"store", cfg.Store.Driver,
		"enrichment", cfg.Enrichment.Mode,
		"cache", cfg.Cache.Enabled,
		"redis", cfg.Redis.Enabled,
	)
	return app, nil
}

func (a *application) openStore() (repositories.TaskStore, error) {
	if !a.cfg.UsesDatabase() {
		return repositories.NewTaskStore(repositories.DriverMemory, nil)
	}

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          a.cfg.Store.Driver,
		DSN:             a.cfg.GetDatabaseDSN(),
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: a.cfg.Database.ConnMaxIdleTime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.pool = pool

	return repositories.NewTaskStore(a.cfg.Store.Driver, pool.DB)
}

// run serves until ctx is cancelled, then drains in-flight requests and the worker.
func (a *application) run(ctx context.Context) error {
	server := &http.Server{
		Addr:         a.cfg.GetServerAddr(),
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	if a.worker != nil {
		a.worker.Start(ctx, a.cfg.Worker.Concurrency)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Error("http server shutdown failed", "error", shutdownErr)
	}

	a.close()
	a.logger.Info("server stopped")
	return err
}

func (a *application) close() {
	if a.worker != nil {
		a.worker.Stop()
		a.worker = nil
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
		a.redisClient = nil
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
		a.pool = nil
	}
}
