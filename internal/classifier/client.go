// Package classifier talks to the external priority prediction service.
//
// The client never hands transport details to its caller: every failure
// surfaces as ErrClassifierUnavailable and the cause is only logged.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"task-tracker/backend/internal/models"
)

var ErrClassifierUnavailable = errors.New("priority classifier unavailable")

const DefaultTimeout = 5 * time.Second

// maxResponseBytes bounds how much of a predict response is read.
const maxResponseBytes = 64 << 10

type Config struct {
	URL     string
	Timeout time.Duration
	Breaker *BreakerConfig
}

// Prediction is the predictor's answer. Confidence is kept raw because
// predictors disagree on its type; it is informational only.
type Prediction struct {
	Priority   string          `json:"predicted_priority"`
	Confidence json.RawMessage `json:"confidence,omitempty"`
}

// Label returns the priority when the predictor answered high or low.
func (p Prediction) Label() (models.Priority, bool) {
	return models.ParsePriority(p.Priority)
}

// ConfidenceText renders Confidence for logs: strings unquoted, anything
// else as its JSON text.
func (p Prediction) ConfidenceText() string {
	if len(p.Confidence) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(p.Confidence, &text); err == nil {
		return text
	}
	return string(p.Confidence)
}

type predictRequest struct {
	TaskDescription string `json:"task_description"`
}

type Client struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *Breaker
	logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		url:        cfg.URL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    NewBreaker(cfg.Breaker),
		logger:     slog.Default().With("component", "classifier"),
	}
}

// Classify asks the predictor for a priority. The call is detached from ctx
// cancellation and bounded only by the client timeout.
func (c *Client) Classify(ctx context.Context, text string) (Prediction, error) {
	if c.url == "" {
		return Prediction{}, ErrClassifierUnavailable
	}

	var prediction Prediction
	err := c.breaker.Execute(func() error {
		p, err := c.predict(ctx, text)
		if err != nil {
			return err
		}
		prediction = p
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBreakerOpen) {
			c.logger.Debug("classifier skipped, breaker open")
		} else {
			c.logger.Warn("classifier request failed", "error", err)
		}
		return Prediction{}, ErrClassifierUnavailable
	}

	c.logger.Debug("prediction received",
		"predicted_priority", prediction.Priority,
		"confidence", prediction.ConfidenceText(),
	)
	return prediction, nil
}

func (c *Client) predict(ctx context.Context, text string) (Prediction, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	body, err := json.Marshal(predictRequest{TaskDescription: text})
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Prediction{}, fmt.Errorf("predict returned status %d", resp.StatusCode)
	}

	var prediction Prediction
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&prediction); err != nil {
		return Prediction{}, fmt.Errorf("failed to decode predict response: %w", err)
	}

	return prediction, nil
}

func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

func (c *Client) Stats() map[string]interface{} {
	return map[string]interface{}{
		"url":             c.url,
		"timeout_seconds": c.timeout.Seconds(),
		"breaker":         c.breaker.Stats(),
	}
}

// Health fails only while the breaker is open; the predictor is not probed.
func (c *Client) Health(context.Context) error {
	if c.breaker.State() == BreakerOpen {
		return ErrClassifierUnavailable
	}
	return nil
}
