package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsCollector manages the service metrics. A collector built with
// metrics disabled is a valid no-op; every Record method checks its own
// instruments.
type MetricsCollector struct {
	meter metric.Meter

	// Task metrics
	tasksStarted   metric.Int64Counter
	tasksCompleted metric.Int64Counter
	tasksFailed    metric.Int64Counter
	tasksActive    metric.Int64UpDownCounter
	taskIterations metric.Int64Histogram

	// Webhook metrics
	webhookDeliveries metric.Int64Counter

	// LLM metrics
	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	// Action metrics
	actionExecutions metric.Int64Counter
	actionDuration   metric.Float64Histogram
}

// NewMetricsCollector creates a metrics collector backed by a Prometheus
// exporter. The exporter registers with the default Prometheus registry;
// MetricsHandler exposes it.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("vps-agent")

	tasksStarted, err := meter.Int64Counter(
		"vpsagent.tasks.started.total",
		metric.WithDescription("Total number of tasks accepted for execution"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_started counter: %w", err)
	}

	tasksCompleted, err := meter.Int64Counter(
		"vpsagent.tasks.completed.total",
		metric.WithDescription("Total number of tasks that finished successfully"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_completed counter: %w", err)
	}

	tasksFailed, err := meter.Int64Counter(
		"vpsagent.tasks.failed.total",
		metric.WithDescription("Total number of tasks that ended in failure"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_failed counter: %w", err)
	}

	tasksActive, err := meter.Int64UpDownCounter(
		"vpsagent.tasks.active",
		metric.WithDescription("Number of tasks currently executing"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_active gauge: %w", err)
	}

	taskIterations, err := meter.Int64Histogram(
		"vpsagent.task.iterations",
		metric.WithDescription("Agent loop iterations per task"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task_iterations histogram: %w", err)
	}

	webhookDeliveries, err := meter.Int64Counter(
		"vpsagent.webhook.deliveries.total",
		metric.WithDescription("Webhook delivery attempts by outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook_deliveries counter: %w", err)
	}

	llmRequests, err := meter.Int64Counter(
		"vpsagent.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_requests counter: %w", err)
	}

	llmTokensInput, err := meter.Int64Counter(
		"vpsagent.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to the LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_input counter: %w", err)
	}

	llmTokensOutput, err := meter.Int64Counter(
		"vpsagent.llm.tokens.output",
		metric.WithDescription("Total output tokens from the LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_output counter: %w", err)
	}

	llmLatency, err := meter.Float64Histogram(
		"vpsagent.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_latency histogram: %w", err)
	}

	actionExecutions, err := meter.Int64Counter(
		"vpsagent.action.executions.total",
		metric.WithDescription("Total number of agent action executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create action_executions counter: %w", err)
	}

	actionDuration, err := meter.Float64Histogram(
		"vpsagent.action.duration",
		metric.WithDescription("Agent action execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create action_duration histogram: %w", err)
	}

	return &MetricsCollector{
		meter:             meter,
		tasksStarted:      tasksStarted,
		tasksCompleted:    tasksCompleted,
		tasksFailed:       tasksFailed,
		tasksActive:       tasksActive,
		taskIterations:    taskIterations,
		webhookDeliveries: webhookDeliveries,
		llmRequests:       llmRequests,
		llmTokensInput:    llmTokensInput,
		llmTokensOutput:   llmTokensOutput,
		llmLatency:        llmLatency,
		actionExecutions:  actionExecutions,
		actionDuration:    actionDuration,
	}, nil
}

// MetricsHandler returns the Prometheus exposition handler.
func MetricsHandler() http.Handler {
	return promclient.Handler()
}

// RecordTaskStarted marks a task as running.
func (m *MetricsCollector) RecordTaskStarted(ctx context.Context) {
	if m == nil || m.tasksStarted == nil {
		return
	}
	m.tasksStarted.Add(ctx, 1)
	m.tasksActive.Add(ctx, 1)
}

// RecordTaskFinished marks a task as terminal with its final status and
// iteration count.
func (m *MetricsCollector) RecordTaskFinished(ctx context.Context, status string, iterations int) {
	if m == nil || m.tasksActive == nil {
		return
	}
	if status == "completed" {
		m.tasksCompleted.Add(ctx, 1)
	} else {
		m.tasksFailed.Add(ctx, 1)
	}
	m.taskIterations.Record(ctx, int64(iterations))
	m.tasksActive.Add(ctx, -1)
}

// RecordWebhookDelivery records one webhook delivery attempt outcome.
func (m *MetricsCollector) RecordWebhookDelivery(ctx context.Context, event, outcome string) {
	if m == nil || m.webhookDeliveries == nil {
		return
	}
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

// RecordLLMRequest records an LLM request.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}

	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmTokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmTokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAction records an agent action execution.
func (m *MetricsCollector) RecordAction(ctx context.Context, action, status string, duration time.Duration) {
	if m == nil || m.actionExecutions == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("action", action),
		attribute.String("status", status),
	}

	m.actionExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.actionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("action", action)))
}
