package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"task-tracker/backend/internal/classifier"
	"task-tracker/backend/internal/middleware"
	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/monitoring"
	"task-tracker/backend/internal/repositories"
	"task-tracker/backend/internal/router"
	"task-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine      *gin.Engine
	store       *repositories.MemoryTaskStore
	prediction  atomic.Value
	predictions int32
}

func newTestServer(t *testing.T, prediction string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{store: repositories.NewMemoryTaskStore()}
	ts.prediction.Store(prediction)

	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.predictions, 1)
		label := ts.prediction.Load().(string)
		if label == "slow" {
			time.Sleep(300 * time.Millisecond)
			label = "high"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"predicted_priority": label})
	}))
	t.Cleanup(fake.Close)

	client := classifier.NewClient(classifier.Config{URL: fake.URL, Timeout: 100 * time.Millisecond})

	service := services.NewTaskService(ts.store, services.NewPriorityEnricher(client, ts.store.Update))

	ts.engine = router.New(router.Deps{
		TaskService: service,
		Monitor:     monitoring.NewMonitor(),
	})
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decodeTask(t *testing.T, w *httptest.ResponseRecorder) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	return task
}

func TestCreateIsEnrichedWithHighPriority(t *testing.T) {
	ts := newTestServer(t, "high")

	w := ts.do("POST", "/tasks", `{"title":"Critical Security Bug"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	task := decodeTask(t, w)
	require.NotNil(t, task.Priority)
	assert.Equal(t, models.PriorityHigh, *task.Priority)
	assert.Equal(t, models.StatusTodo, task.Status)
	assert.False(t, task.Completed)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestCreateWithUnusablePrediction(t *testing.T) {
	for _, label := range []string{"medium", "slow"} {
		t.Run(label, func(t *testing.T) {
			ts := newTestServer(t, label)

			w := ts.do("POST", "/tasks", `{"title":"Routine chore"}`)
			require.Equal(t, http.StatusCreated, w.Code)
			assert.Nil(t, decodeTask(t, w).Priority)
		})
	}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	ts := newTestServer(t, "high")

	w := ts.do("POST", "/tasks", `{"title":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ts.predictions))

	list := ts.do("GET", "/tasks", "")
	assert.Equal(t, "[]", list.Body.String())
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	ts := newTestServer(t, "low")

	created := decodeTask(t, ts.do("POST", "/tasks", `{"title":"Temporary"}`))
	path := "/tasks/" + itoa(created.ID)

	assert.Equal(t, http.StatusNoContent, ts.do("DELETE", path, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do("GET", path, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do("PUT", path, `{"title":"again"}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do("DELETE", path, "").Code)

	var tasks []models.Task
	require.NoError(t, json.Unmarshal(ts.do("GET", "/tasks", "").Body.Bytes(), &tasks))
	assert.Empty(t, tasks)
}

func TestCompletingTaskMarksItDone(t *testing.T) {
	ts := newTestServer(t, "low")

	created := decodeTask(t, ts.do("POST", "/tasks", `{"title":"Write report","description":"quarterly numbers"}`))
	require.Equal(t, models.StatusTodo, created.Status)

	w := ts.do("PUT", "/tasks/"+itoa(created.ID), `{"completed":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	updated := decodeTask(t, w)
	assert.Equal(t, models.StatusDone, updated.Status)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Write report", updated.Title)
	require.NotNil(t, updated.Priority, "priority survives unrelated updates")
	assert.Equal(t, models.PriorityLow, *updated.Priority)
}

func TestIDsAreNeverReused(t *testing.T) {
	ts := newTestServer(t, "low")

	first := decodeTask(t, ts.do("POST", "/tasks", `{"title":"one"}`))
	ts.do("DELETE", "/tasks/"+itoa(first.ID), "")
	second := decodeTask(t, ts.do("POST", "/tasks", `{"title":"two"}`))

	assert.Greater(t, second.ID, first.ID)
}

func TestListFiltersByPriority(t *testing.T) {
	ts := newTestServer(t, "high")
	ts.do("POST", "/tasks", `{"title":"urgent"}`)
	ts.prediction.Store("low")
	ts.do("POST", "/tasks", `{"title":"later"}`)

	var tasks []models.Task
	require.NoError(t, json.Unmarshal(ts.do("GET", "/tasks?priority=high", "").Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "urgent", tasks[0].Title)
}

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t, "low")

	assert.Equal(t, http.StatusOK, ts.do("GET", "/", "").Code)
	assert.Equal(t, http.StatusOK, ts.do("GET", "/health", "").Code)
	assert.Equal(t, http.StatusOK, ts.do("GET", "/live", "").Code)
	assert.Equal(t, http.StatusOK, ts.do("GET", "/metrics", "").Code)
}

func TestRateLimitedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := router.New(router.Deps{
		TaskService: services.NewTaskService(repositories.NewMemoryTaskStore(), nil),
		Monitor:     monitoring.NewMonitor(),
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}),
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/tasks", nil)
		engine.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/live", nil)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "probes are not rate limited")
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := router.New(router.Deps{
		TaskService:    services.NewTaskService(repositories.NewMemoryTaskStore(), nil),
		AllowedOrigins: []string{"https://app.example.com"},
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("OPTIONS", "/tasks", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
