package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 5 * time.Second

type Metrics struct {
	mu              sync.RWMutex
	RequestCount    int64            `json:"request_count"`
	RequestDuration time.Duration    `json:"avg_request_duration_ms"`
	ActiveRequests  int64            `json:"active_requests"`
	ErrorCount      int64            `json:"error_count"`
	StatusCodes     map[string]int64 `json:"status_codes"`
	Endpoints       map[string]int64 `json:"endpoint_calls"`
	StartTime       time.Time        `json:"start_time"`
	LastRequest     time.Time        `json:"last_request"`
	totalDuration   time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{
		StatusCodes: make(map[string]int64),
		Endpoints:   make(map[string]int64),
		StartTime:   time.Now(),
	}
}

type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Critical bool      `json:"critical"`
	LastRun  time.Time `json:"last_run"`
}

type HealthCheckFunc func(ctx context.Context) error

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// HealthChecker runs its registered checks on every call to Run.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]registeredCheck
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]registeredCheck)}
}

// Register adds a check. Only failing critical checks make the service unready.
func (h *HealthChecker) Register(name string, critical bool, checkFunc HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registeredCheck{fn: checkFunc, critical: critical}
}

func (h *HealthChecker) Run(ctx context.Context) map[string]HealthCheck {
	h.mu.RLock()
	checks := make(map[string]registeredCheck, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]HealthCheck, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check registeredCheck) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			result := HealthCheck{Name: name, Status: "healthy", Critical: check.critical}
			if err := check.fn(checkCtx); err != nil {
				result.Status = "unhealthy"
				result.Message = err.Error()
			}
			result.LastRun = time.Now()

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	return results
}

// StatsFunc contributes a named section to the metrics report.
type StatsFunc func(ctx context.Context) interface{}

// Monitor holds request metrics, health checks, and extra stats sections.
type Monitor struct {
	metrics *Metrics
	health  *HealthChecker

	mu    sync.RWMutex
	stats map[string]StatsFunc
}

func NewMonitor() *Monitor {
	return &Monitor{
		metrics: NewMetrics(),
		health:  NewHealthChecker(),
		stats:   make(map[string]StatsFunc),
	}
}

func (m *Monitor) RegisterHealthCheck(name string, critical bool, checkFunc HealthCheckFunc) {
	m.health.Register(name, critical, checkFunc)
}

func (m *Monitor) RegisterStats(name string, fn StatsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[name] = fn
}

func (m *Monitor) MetricsMiddleware() gin.HandlerFunc {
	metrics := m.metrics
	return func(c *gin.Context) {
		start := time.Now()

		metrics.mu.Lock()
		metrics.ActiveRequests++
		metrics.mu.Unlock()

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		endpoint := c.Request.Method + " " + c.FullPath()

		metrics.mu.Lock()
		metrics.RequestCount++
		metrics.ActiveRequests--
		metrics.totalDuration += duration
		metrics.RequestDuration = metrics.totalDuration / time.Duration(metrics.RequestCount)
		metrics.LastRequest = time.Now()

		if statusCode >= 400 {
			metrics.ErrorCount++
		}
		metrics.StatusCodes[http.StatusText(statusCode)]++
		metrics.Endpoints[endpoint]++
		metrics.mu.Unlock()
	}
}

func (m *Monitor) GetMetrics() *Metrics {
	m.metrics.mu.RLock()
	defer m.metrics.mu.RUnlock()

	snapshot := &Metrics{
		RequestCount:    m.metrics.RequestCount,
		RequestDuration: m.metrics.RequestDuration,
		ActiveRequests:  m.metrics.ActiveRequests,
		ErrorCount:      m.metrics.ErrorCount,
		StatusCodes:     make(map[string]int64, len(m.metrics.StatusCodes)),
		Endpoints:       make(map[string]int64, len(m.metrics.Endpoints)),
		StartTime:       m.metrics.StartTime,
		LastRequest:     m.metrics.LastRequest,
	}

	for k, v := range m.metrics.StatusCodes {
		snapshot.StatusCodes[k] = v
	}
	for k, v := range m.metrics.Endpoints {
		snapshot.Endpoints[k] = v
	}

	return snapshot
}

type SystemMetrics struct {
	Uptime         time.Duration `json:"uptime"`
	MemoryUsage    MemoryStats   `json:"memory"`
	GoroutineCount int           `json:"goroutine_count"`
	CPUCount       int           `json:"cpu_count"`
	GoVersion      string        `json:"go_version"`
}

type MemoryStats struct {
	Alloc        uint64 `json:"alloc_mb"`
	TotalAlloc   uint64 `json:"total_alloc_mb"`
	Sys          uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	NextGC       uint64 `json:"next_gc_mb"`
	LastGC       string `json:"last_gc"`
	GCPauseTotal string `json:"gc_pause_total"`
}

func (m *Monitor) GetSystemMetrics() SystemMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemMetrics{
		Uptime: time.Since(m.metrics.StartTime),
		MemoryUsage: MemoryStats{
			Alloc:        bToMb(mem.Alloc),
			TotalAlloc:   bToMb(mem.TotalAlloc),
			Sys:          bToMb(mem.Sys),
			NumGC:        mem.NumGC,
			NextGC:       bToMb(mem.NextGC),
			LastGC:       time.Unix(0, int64(mem.LastGC)).Format(time.RFC3339),
			GCPauseTotal: time.Duration(mem.PauseTotalNs).String(),
		},
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

func (m *Monitor) MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := gin.H{
			"application": m.GetMetrics(),
			"system":      m.GetSystemMetrics(),
			"timestamp":   time.Now(),
		}

		m.mu.RLock()
		names := make([]string, 0, len(m.stats))
		for name := range m.stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			response[name] = m.stats[name](c.Request.Context())
		}
		m.mu.RUnlock()

		c.JSON(http.StatusOK, response)
	}
}

// HealthHandler reports every check. A failing non-critical check degrades
// the status without failing the request.
func (m *Monitor) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := m.health.Run(c.Request.Context())

		overallStatus := "healthy"
		for _, check := range checks {
			if check.Status == "healthy" {
				continue
			}
			if check.Critical {
				overallStatus = "unhealthy"
				break
			}
			overallStatus = "degraded"
		}

		status := http.StatusOK
		if overallStatus == "unhealthy" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":    overallStatus,
			"timestamp": time.Now(),
			"checks":    checks,
			"uptime":    time.Since(m.metrics.StartTime).String(),
		})
	}
}

func (m *Monitor) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ready := true
		for _, check := range m.health.Run(c.Request.Context()) {
			if check.Critical && check.Status != "healthy" {
				ready = false
				break
			}
		}

		if ready {
			c.JSON(http.StatusOK, gin.H{
				"status":    "ready",
				"timestamp": time.Now(),
			})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not ready",
				"timestamp": time.Now(),
			})
		}
	}
}

func (m *Monitor) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
			"uptime":    time.Since(m.metrics.StartTime).String(),
		})
	}
}
