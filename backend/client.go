package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"pnp-bridge/config"
	"pnp-bridge/models"
)

// Client talks to the motion backend's HTTP control-plane API. Transient
// failures are retried with exponential backoff; a circuit breaker stops
// hammering a backend that is down.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a backend client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "motion-backend",
		Interval: 60 * time.Second,
		Timeout:  10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		baseURL: cfg.BackendURL,
		apiKey:  cfg.BackendAPIKey,
		http:    &http.Client{Timeout: cfg.BackendTimeout},
		breaker: breaker,
		logger:  logger.With("component", "backend_client"),
	}
}

// Execute submits the sequence as a single script so the backend runs it
// atomically.
func (c *Client) Execute(ctx context.Context, seq models.InstructionSequence) error {
	payload := map[string]interface{}{"script": seq.Script()}
	var out struct {
		Result string `json:"result"`
		Error  string `json:"error"`
	}
	if err := c.postJSON(ctx, "/api/machine/execute", payload, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return models.NewCommandError(models.ErrCodeExecutionError, out.Error)
	}
	return nil
}

// QueryState fetches current values for the given selectors.
func (c *Client) QueryState(ctx context.Context, selectors []string) (Snapshot, error) {
	objects := make(map[string]interface{}, len(selectors))
	for _, s := range selectors {
		objects[s] = nil
	}
	payload := map[string]interface{}{"objects": objects}
	var out struct {
		Result map[string]interface{} `json:"result"`
		Error  string                 `json:"error"`
	}
	if err := c.postJSON(ctx, "/api/machine/query", payload, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, models.NewCommandError(models.ErrCodeExecutionError, out.Error)
	}
	return Snapshot(out.Result), nil
}

// EmergencyStop bypasses the breaker and retries: a stop must always be
// attempted immediately, even while the breaker is open.
func (c *Client) EmergencyStop(ctx context.Context) error {
	err := c.doPost(ctx, "/api/machine/emergency_stop", map[string]interface{}{}, nil)
	if err != nil {
		return models.WrapCommandError(models.ErrCodeBackendUnavailable, "emergency stop request failed", err)
	}
	return nil
}

// postJSON sends a request through the breaker with backoff on transient
// failures.
func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 100 * time.Millisecond
		bo.MaxElapsedTime = 5 * time.Second
		return nil, backoff.Retry(func() error {
			return c.doPost(ctx, path, payload, out)
		}, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx))
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return models.WrapCommandError(models.ErrCodeBackendUnavailable, "backend circuit open", err)
	}
	if err != nil {
		return models.WrapCommandError(models.ErrCodeExecutionError,
			fmt.Sprintf("backend call %s failed", path), err)
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		io.Copy(io.Discard, res.Body)
		return fmt.Errorf("POST %s -> %s", path, res.Status)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		io.Copy(io.Discard, res.Body)
		return backoff.Permanent(fmt.Errorf("POST %s -> %s", path, res.Status))
	}
	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}
