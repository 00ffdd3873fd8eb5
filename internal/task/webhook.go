package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mikeyy1405/Writgoai.nl/internal/agent"
	agenterrors "github.com/Mikeyy1405/Writgoai.nl/internal/errors"
	"github.com/Mikeyy1405/Writgoai.nl/internal/events"
	"github.com/Mikeyy1405/Writgoai.nl/internal/httpclient"
	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
	"github.com/Mikeyy1405/Writgoai.nl/internal/observability"
)

const (
	webhookPath    = "/api/vps-agent/webhook"
	webhookTimeout = 30 * time.Second
)

// Webhook event names, matching the status they report.
const (
	WebhookRunning   = "running"
	WebhookCompleted = "completed"
	WebhookFailed    = "failed"
)

// NotifierConfig points the notifier at the platform. Leaving either field
// empty disables delivery.
type NotifierConfig struct {
	// BaseURL is the platform origin; the webhook path is appended to it.
	BaseURL string
	// Secret is the shared bearer token expected by the platform.
	Secret string
}

// Notifier reports task lifecycle transitions to the platform webhook.
// Delivery is at-least-once: transient failures are retried a bounded
// number of times, and a task never fails because its report did.
type Notifier struct {
	cfg     NotifierConfig
	client  *http.Client
	retry   agenterrors.RetryConfig
	logger  logging.Logger
	tracer  trace.Tracer
	metrics *observability.MetricsCollector
	enabled bool
}

// NewNotifier builds a notifier. Missing configuration is tolerated so the
// service can run standalone; deliveries are then skipped with a warning
// logged once at construction.
func NewNotifier(cfg NotifierConfig, metrics *observability.MetricsCollector) *Notifier {
	logger := logging.NewComponentLogger("webhook")
	enabled := cfg.BaseURL != "" && cfg.Secret != ""
	if !enabled {
		logger.Warn("Webhook delivery disabled: WRITGO_API_URL or WRITGO_WEBHOOK_SECRET not configured")
	}

	return &Notifier{
		cfg:     cfg,
		client:  httpclient.New(webhookTimeout, logger),
		retry:   webhookRetryConfig(),
		logger:  logger,
		tracer:  otel.Tracer("vps-agent"),
		metrics: metrics,
		enabled: enabled,
	}
}

// Enabled reports whether deliveries will actually be sent.
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// webhookRetryConfig allows three delivery attempts in total.
func webhookRetryConfig() agenterrors.RetryConfig {
	return agenterrors.RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    time.Second,
		MaxDelay:     8 * time.Second,
		JitterFactor: 0.25,
	}
}

type sessionData struct {
	Iterations int            `json:"iterations"`
	Events     []events.Event `json:"events"`
}

// webhookPayload is the platform's webhook contract. Fields beyond task_id
// and status are populated per event.
type webhookPayload struct {
	TaskID       string            `json:"task_id"`
	Status       string            `json:"status"`
	ResultData   map[string]string `json:"result_data,omitempty"`
	ResultFiles  []string          `json:"result_files,omitempty"`
	SessionData  *sessionData      `json:"session_data,omitempty"`
	ActivityLog  []events.Event    `json:"activity_log,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// TaskRunning reports that the task left the queue.
func (n *Notifier) TaskRunning(ctx context.Context, taskID string) {
	n.deliver(ctx, WebhookRunning, webhookPayload{
		TaskID: taskID,
		Status: StatusRunning,
	})
}

// TaskCompleted reports a successful run with its artifacts and the full
// event history of the session.
func (n *Notifier) TaskCompleted(ctx context.Context, taskID string, result *agent.Result, history []events.Event) {
	n.deliver(ctx, WebhookCompleted, webhookPayload{
		TaskID:      taskID,
		Status:      StatusCompleted,
		ResultData:  result.ResultData,
		ResultFiles: result.Files,
		SessionData: &sessionData{Iterations: result.Iterations, Events: history},
		ActivityLog: history,
	})
}

// TaskFailed reports a terminal failure.
func (n *Notifier) TaskFailed(ctx context.Context, taskID, errMsg string) {
	n.deliver(ctx, WebhookFailed, webhookPayload{
		TaskID:       taskID,
		Status:       StatusFailed,
		ErrorMessage: errMsg,
	})
}

func (n *Notifier) deliver(ctx context.Context, event string, payload webhookPayload) {
	if !n.enabled {
		n.logger.Debug("Skipping %s webhook for task %s: delivery disabled", event, payload.TaskID)
		return
	}

	ctx, span := n.tracer.Start(ctx, observability.SpanWebhookDeliver, trace.WithAttributes(
		attribute.String(observability.AttrTaskID, payload.TaskID),
		attribute.String(observability.AttrWebhookEvent, event),
	))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("Could not encode %s webhook for task %s: %v", event, payload.TaskID, err)
		return
	}
	url := strings.TrimRight(n.cfg.BaseURL, "/") + webhookPath

	err = agenterrors.RetryWithLog(ctx, n.retry, func(ctx context.Context) error {
		return n.post(ctx, url, body)
	}, n.logger)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.SetAttributes(observability.ErrorAttrs(err)...)
		n.logger.Error("Webhook %s for task %s not delivered: %v", event, payload.TaskID, err)
	} else {
		n.logger.Info("Webhook %s delivered for task %s", event, payload.TaskID)
	}
	n.metrics.RecordWebhookDelivery(ctx, event, outcome)
}

// post sends one delivery attempt and classifies the outcome so the retry
// wrapper only repeats transport failures and retryable statuses.
func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return agenterrors.NewPermanentError(err, fmt.Sprintf("build webhook request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.Secret)

	resp, err := n.client.Do(req)
	if err != nil {
		return agenterrors.NewTransientError(err, fmt.Sprintf("webhook request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("webhook endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	if agenterrors.TransientHTTPStatus(resp.StatusCode) {
		return agenterrors.NewTransientError(cause, cause.Error())
	}
	return agenterrors.NewPermanentError(cause, cause.Error())
}
