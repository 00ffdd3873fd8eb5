package task

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mikeyy1405/Writgoai.nl/internal/agent"
	agenterrors "github.com/Mikeyy1405/Writgoai.nl/internal/errors"
	"github.com/Mikeyy1405/Writgoai.nl/internal/events"
)

// fastRetry keeps delivery tests quick; attempt count matches production.
func fastRetry() agenterrors.RetryConfig {
	return agenterrors.RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestNotifierTaskRunningDelivery(t *testing.T) {
	var received webhookPayload
	var receivedPath string
	var receivedHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedHeaders = r.Header
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(NotifierConfig{BaseURL: srv.URL, Secret: "s3cret"}, nil)
	if !n.Enabled() {
		t.Fatal("expected notifier to be enabled")
	}
	n.TaskRunning(context.Background(), "T-1")

	if receivedPath != "/api/vps-agent/webhook" {
		t.Errorf("unexpected path: %s", receivedPath)
	}
	if got := receivedHeaders.Get("Authorization"); got != "Bearer s3cret" {
		t.Errorf("unexpected Authorization header: %s", got)
	}
	if got := receivedHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("unexpected Content-Type: %s", got)
	}
	if received.TaskID != "T-1" {
		t.Errorf("expected task_id T-1, got %s", received.TaskID)
	}
	if received.Status != StatusRunning {
		t.Errorf("expected status running, got %s", received.Status)
	}
	if received.SessionData != nil || received.ErrorMessage != "" {
		t.Errorf("running payload carries extra fields: %+v", received)
	}
}

func TestNotifierTaskCompletedDelivery(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	history := []events.Event{
		{Type: events.TypeTask, Content: "Research current pricing", Timestamp: time.Now()},
		{Type: events.TypeAction, Content: "save_file", Timestamp: time.Now()},
		{Type: events.TypeObservation, Content: "File saved: report.md", Timestamp: time.Now()},
	}
	result := &agent.Result{
		Success:    true,
		Summary:    "report written",
		Iterations: 4,
		Files:      []string{"report.md", "todo.md"},
		ResultData: map[string]string{"report.md": "# Pricing"},
	}

	n := NewNotifier(NotifierConfig{BaseURL: srv.URL, Secret: "s3cret"}, nil)
	n.TaskCompleted(context.Background(), "T-2", result, history)

	if received.Status != StatusCompleted {
		t.Fatalf("expected status completed, got %s", received.Status)
	}
	if received.ResultData["report.md"] != "# Pricing" {
		t.Errorf("unexpected result_data: %v", received.ResultData)
	}
	if len(received.ResultFiles) != 2 || received.ResultFiles[0] != "report.md" {
		t.Errorf("unexpected result_files: %v", received.ResultFiles)
	}
	if received.SessionData == nil {
		t.Fatal("expected session_data")
	}
	if received.SessionData.Iterations != 4 {
		t.Errorf("expected 4 iterations, got %d", received.SessionData.Iterations)
	}
	if len(received.SessionData.Events) != 3 {
		t.Errorf("expected 3 session events, got %d", len(received.SessionData.Events))
	}
	if len(received.ActivityLog) != 3 {
		t.Errorf("expected 3 activity_log entries, got %d", len(received.ActivityLog))
	}
	if received.ActivityLog[2].Content != "File saved: report.md" {
		t.Errorf("unexpected last activity entry: %+v", received.ActivityLog[2])
	}
	if received.ErrorMessage != "" {
		t.Errorf("completed payload carries error_message: %s", received.ErrorMessage)
	}
}

func TestNotifierTaskFailedDelivery(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(NotifierConfig{BaseURL: srv.URL, Secret: "s3cret"}, nil)
	n.TaskFailed(context.Background(), "T-3", "sandbox image missing")

	if received.Status != StatusFailed {
		t.Fatalf("expected status failed, got %s", received.Status)
	}
	if received.ErrorMessage != "sandbox image missing" {
		t.Errorf("unexpected error_message: %s", received.ErrorMessage)
	}
	if received.SessionData != nil || len(received.ResultFiles) != 0 {
		t.Errorf("failed payload carries result fields: %+v", received)
	}
}

func TestNotifierRetriesServerErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(NotifierConfig{BaseURL: srv.URL, Secret: "s3cret"}, nil)
	n.retry = fastRetry()
	n.TaskRunning(context.Background(), "T-1")

	if hits != 3 {
		t.Fatalf("expected delivery on the third attempt, got %d hits", hits)
	}
}

func TestNotifierGivesUpAfterThreeAttempts(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(NotifierConfig{BaseURL: srv.URL, Secret: "s3cret"}, nil)
	n.retry = fastRetry()
	n.TaskRunning(context.Background(), "T-1")

	if hits != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", hits)
	}
}

func TestNotifierDoesNotRetryClientErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewNotifier(NotifierConfig{BaseURL: srv.URL, Secret: "s3cret"}, nil)
	n.retry = fastRetry()
	n.TaskRunning(context.Background(), "T-1")

	if hits != 1 {
		t.Fatalf("expected a single attempt on 403, got %d", hits)
	}
}

func TestNotifierDisabledWithoutConfig(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(NotifierConfig{BaseURL: srv.URL}, nil)
	if n.Enabled() {
		t.Fatal("expected notifier without a secret to be disabled")
	}
	n.TaskRunning(context.Background(), "T-1")
	n.TaskFailed(context.Background(), "T-1", "boom")

	if hits != 0 {
		t.Fatalf("disabled notifier must not deliver, got %d hits", hits)
	}
}

func TestNotifierJoinsBaseURLWithTrailingSlash(t *testing.T) {
	var receivedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(NotifierConfig{BaseURL: srv.URL + "/", Secret: "s3cret"}, nil)
	n.TaskRunning(context.Background(), "T-1")

	if receivedPath != "/api/vps-agent/webhook" {
		t.Fatalf("unexpected path: %s", receivedPath)
	}
}
