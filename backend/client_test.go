package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pnp-bridge/config"
	"pnp-bridge/models"
)

func testClient(url string) *Client {
	cfg := &config.Config{
		BackendURL:     url,
		BackendAPIKey:  "test-key",
		BackendTimeout: 2 * time.Second,
	}
	return NewClient(cfg, slog.Default())
}

func TestExecuteSendsScript(t *testing.T) {
	var gotScript string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/machine/execute" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.Header.Get("X-Api-Key")
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotScript = body["script"]
		json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Execute(context.Background(), models.InstructionSequence{"G28", "G0 X10 F1500"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if gotScript != "G28\nG0 X10 F1500" {
		t.Errorf("instructions must join into one script, got %q", gotScript)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header missing, got %q", gotKey)
	}
}

func TestExecuteSurfacesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "Must home axis first"})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Execute(context.Background(), models.InstructionSequence{"G0 X10"})
	if err == nil {
		t.Fatal("expected backend error surfaced")
	}
	if ce := models.AsCommandError(err); ce.Code != models.ErrCodeExecutionError {
		t.Errorf("expected EXECUTION_ERROR, got %s", ce.Code)
	}
}

func TestQueryStateSelectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Objects map[string]interface{} `json:"objects"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body.Objects["toolhead"]; !ok {
			t.Errorf("expected toolhead selector, got %v", body.Objects)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"toolhead": map[string]interface{}{
					"position": map[string]interface{}{"x": 1.0, "y": 2.0, "z": 3.0},
				},
			},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	snap, err := c.QueryState(context.Background(), []string{"toolhead"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if _, ok := snap["toolhead"]; !ok {
		t.Errorf("snapshot missing toolhead: %v", snap)
	}
}

func TestTransientFailureRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if err := c.Execute(context.Background(), models.InstructionSequence{"G28"}); err != nil {
		t.Fatalf("expected the retry to succeed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected one retry, got %d calls", calls)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if err := c.Execute(context.Background(), models.InstructionSequence{"G28"}); err == nil {
		t.Fatal("expected a permanent error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("4xx responses must not be retried, got %d calls", calls)
	}
}

func TestEmergencyStopAlwaysAttempted(t *testing.T) {
	var stops int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/machine/emergency_stop" {
			atomic.AddInt32(&stops, 1)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	// Trip the breaker with failing calls.
	for i := 0; i < 6; i++ {
		c.Execute(context.Background(), models.InstructionSequence{"G28"})
	}
	if err := c.EmergencyStop(context.Background()); err != nil {
		t.Fatalf("emergency stop must bypass the breaker: %v", err)
	}
	if atomic.LoadInt32(&stops) != 1 {
		t.Errorf("stop request not sent, count %d", stops)
	}
}
