package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-tracker/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPredictServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClassify_SendsDescriptionAndDecodesPrediction(t *testing.T) {
	var got predictRequest
	srv := newPredictServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"task_description":"Critical Security Bug","predicted_priority":"high","confidence":"estimated"}`))
	})

	client := NewClient(Config{URL: srv.URL})
	prediction, err := client.Classify(context.Background(), "Critical Security Bug")

	require.NoError(t, err)
	assert.Equal(t, "Critical Security Bug", got.TaskDescription)
	assert.Equal(t, "high", prediction.Priority)
	assert.Equal(t, "estimated", prediction.ConfidenceText())
	label, ok := prediction.Label()
	assert.True(t, ok)
	assert.Equal(t, models.PriorityHigh, label)
}

func TestClassify_UnexpectedLabelIsNotValid(t *testing.T) {
	srv := newPredictServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predicted_priority":"medium"}`))
	})

	prediction, err := NewClient(Config{URL: srv.URL}).Classify(context.Background(), "x")

	require.NoError(t, err)
	_, ok := prediction.Label()
	assert.False(t, ok)
}

func TestClassify_AcceptsAnyConfidenceType(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		confidence string
	}{
		{name: "number", body: `{"predicted_priority":"high","confidence":0.93}`, confidence: "0.93"},
		{name: "object", body: `{"predicted_priority":"high","confidence":{"high":0.9,"low":0.1}}`, confidence: `{"high":0.9,"low":0.1}`},
		{name: "null", body: `{"predicted_priority":"high","confidence":null}`, confidence: "null"},
		{name: "absent", body: `{"predicted_priority":"high"}`, confidence: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newPredictServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			client := NewClient(Config{
				URL:     srv.URL,
				Breaker: &BreakerConfig{MaxFailures: 2, Timeout: time.Hour},
			})

			for i := 0; i < 5; i++ {
				prediction, err := client.Classify(context.Background(), "Critical Security Bug")
				require.NoError(t, err)

				label, ok := prediction.Label()
				require.True(t, ok)
				assert.Equal(t, models.PriorityHigh, label)
				assert.Equal(t, tt.confidence, prediction.ConfidenceText())
			}
			assert.Equal(t, BreakerClosed, client.BreakerState())
		})
	}
}

func TestClassify_FailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "model not loaded",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"Model not loaded"}`, http.StatusServiceUnavailable)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newPredictServer(t, tt.handler)
			_, err := NewClient(Config{URL: srv.URL}).Classify(context.Background(), "x")
			assert.Equal(t, ErrClassifierUnavailable, err)
		})
	}
}

func TestClassify_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{URL: url}).Classify(context.Background(), "x")
	assert.Equal(t, ErrClassifierUnavailable, err)
}

func TestClassify_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := newPredictServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.Classify(context.Background(), "slow")

	assert.Equal(t, ErrClassifierUnavailable, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClassify_IgnoresCallerCancellation(t *testing.T) {
	srv := newPredictServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"predicted_priority":"low"}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prediction, err := NewClient(Config{URL: srv.URL}).Classify(ctx, "x")

	require.NoError(t, err)
	assert.Equal(t, "low", prediction.Priority)
}

func TestClassify_BreakerShortCircuits(t *testing.T) {
	calls := 0
	srv := newPredictServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	client := NewClient(Config{
		URL:     srv.URL,
		Breaker: &BreakerConfig{MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxCalls: 1},
	})

	for i := 0; i < 5; i++ {
		_, err := client.Classify(context.Background(), "x")
		assert.Equal(t, ErrClassifierUnavailable, err)
	}

	assert.Equal(t, 2, calls)
	assert.Equal(t, BreakerOpen, client.BreakerState())
	assert.Equal(t, ErrClassifierUnavailable, client.Health(context.Background()))
}

func TestClassify_NoURLConfigured(t *testing.T) {
	_, err := NewClient(Config{}).Classify(context.Background(), "x")
	assert.Equal(t, ErrClassifierUnavailable, err)
}
