package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/Mikeyy1405/Writgoai.nl/internal/agent"
	"github.com/Mikeyy1405/Writgoai.nl/internal/events"
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm"
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm/router"
	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
	"github.com/Mikeyy1405/Writgoai.nl/internal/observability"
	"github.com/Mikeyy1405/Writgoai.nl/internal/planner"
	"github.com/Mikeyy1405/Writgoai.nl/internal/sandbox"
	"github.com/Mikeyy1405/Writgoai.nl/internal/version"
	"github.com/Mikeyy1405/Writgoai.nl/internal/workspace"
)

const (
	// DefaultMaxConcurrentTasks bounds how many agent loops run at once.
	DefaultMaxConcurrentTasks = 4
	// DefaultEvictionGrace keeps finished records and workspaces queryable
	// for an hour after the terminal webhook.
	DefaultEvictionGrace = time.Hour

	workspacePrefix = "agent_workspace_"
)

// Config carries the per-task execution settings.
type Config struct {
	// WorkspaceRoot is the parent directory for per-task workspaces.
	WorkspaceRoot string
	// MaxIterations caps each agent loop.
	MaxIterations int
	// MaxConcurrentTasks bounds simultaneously running loops. Accepted
	// tasks beyond the bound stay queued until a slot frees up.
	MaxConcurrentTasks int64
	// EvictionGrace is how long a finished task stays visible.
	EvictionGrace time.Duration
	// Sandbox configures each task's container.
	Sandbox sandbox.Config
}

// Service accepts tasks, runs each on its own background worker, and
// reports outcomes through the registry and the notifier. Every accepted
// task produces exactly one terminal webhook.
type Service struct {
	cfg      Config
	client   llm.Client
	router   *router.Router
	docker   sandbox.Client
	registry *Registry
	notifier *Notifier
	metrics  *observability.MetricsCollector
	logger   logging.Logger
	tracer   trace.Tracer
	sem      *semaphore.Weighted
}

// NewService wires the service with an empty registry.
func NewService(cfg Config, client llm.Client, rt *router.Router, docker sandbox.Client, notifier *Notifier, metrics *observability.MetricsCollector) *Service {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = agent.DefaultMaxIterations
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if cfg.EvictionGrace <= 0 {
		cfg.EvictionGrace = DefaultEvictionGrace
	}

	return &Service{
		cfg:      cfg,
		client:   client,
		router:   rt,
		docker:   docker,
		registry: NewRegistry(),
		notifier: notifier,
		metrics:  metrics,
		logger:   logging.NewComponentLogger("task"),
		tracer:   otel.Tracer("vps-agent"),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentTasks),
	}
}

// Health is the liveness snapshot served by GET /health.
type Health struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	SandboxReady bool   `json:"sandbox_ready"`
}

// Health reports service liveness and probes the container runtime.
func (s *Service) Health(ctx context.Context) Health {
	return Health{
		Status:       "healthy",
		Version:      version.Version,
		SandboxReady: s.docker.Ping(ctx) == nil,
	}
}

// Status returns the live record for a task id.
func (s *Service) Status(taskID string) (Record, bool) {
	return s.registry.Get(taskID)
}

// Execute validates and registers the request, then hands it to a
// background worker. It returns once the task is queued; progress is
// visible through the status endpoint and reported via webhooks.
func (s *Service) Execute(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := s.registry.Register(req); err != nil {
		return err
	}
	s.logger.Info("Task %s accepted (priority %s)", req.TaskID, req.Priority)

	go s.runTask(req)
	return nil
}

// runTask is the worker for one task. It serializes admission through the
// semaphore, reports the terminal outcome exactly once, and schedules
// eviction on every path.
func (s *Service) runTask(req Request) {
	ctx := context.Background()

	// Admission control. The background context never cancels the wait.
	_ = s.sem.Acquire(ctx, 1)
	defer s.sem.Release(1)

	store := workspace.NewStore(s.workspacePath(req.TaskID))
	defer s.scheduleEviction(req.TaskID, store)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.logger.Error("Worker for task %s panicked: %v", req.TaskID, r)
		if rec, ok := s.registry.Get(req.TaskID); ok && rec.Terminal() {
			return // outcome already reported
		}
		msg := fmt.Sprintf("internal error: %v", r)
		s.registry.SetFailed(req.TaskID, msg)
		s.metrics.RecordTaskFinished(ctx, StatusFailed, 0)
		s.notifier.TaskFailed(ctx, req.TaskID, msg)
	}()

	s.execute(ctx, req, store)
}

func (s *Service) execute(ctx context.Context, req Request, store *workspace.Store) {
	ctx, span := s.tracer.Start(ctx, observability.SpanTaskExecute,
		trace.WithAttributes(observability.TaskAttrs(req.TaskID)...))
	defer span.End()

	s.metrics.RecordTaskStarted(ctx)
	s.registry.SetRunning(req.TaskID)
	s.notifier.TaskRunning(ctx, req.TaskID)
	s.logger.Info("Task %s running: %s", req.TaskID, preview(req.Prompt, 120))

	stream := events.NewStream(0)
	loop := agent.New(agent.Options{
		Client:        s.client,
		Router:        s.router,
		Planner:       planner.New(s.client, s.router.ModelFor(router.TierComplex)),
		Sandbox:       sandbox.New(s.docker, store, s.cfg.Sandbox),
		Store:         store,
		Events:        stream,
		Metrics:       s.metrics,
		MaxIterations: s.cfg.MaxIterations,
	})

	result, err := loop.Run(ctx, req.Prompt)
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
		s.logger.Error("Task %s failed: %v", req.TaskID, err)
		s.registry.SetFailed(req.TaskID, err.Error())
		s.metrics.RecordTaskFinished(ctx, StatusFailed, 0)
		s.notifier.TaskFailed(ctx, req.TaskID, err.Error())
		return
	}

	s.registry.SetIterations(req.TaskID, result.Iterations)

	if !result.Success {
		msg := stopMessage(result)
		span.SetAttributes(observability.StatusAttrs(StatusFailed)...)
		s.logger.Error("Task %s failed: %s", req.TaskID, msg)
		s.registry.SetFailed(req.TaskID, msg)
		s.metrics.RecordTaskFinished(ctx, StatusFailed, result.Iterations)
		s.notifier.TaskFailed(ctx, req.TaskID, msg)
		return
	}

	span.SetAttributes(observability.StatusAttrs(StatusCompleted)...)
	s.logger.Info("Task %s completed in %d iterations with %d files", req.TaskID, result.Iterations, len(result.Files))
	s.registry.SetCompleted(req.TaskID)
	s.metrics.RecordTaskFinished(ctx, StatusCompleted, result.Iterations)
	s.notifier.TaskCompleted(ctx, req.TaskID, result, stream.All())
}

// stopMessage renders a non-success loop outcome for the failure report.
func stopMessage(result *agent.Result) string {
	switch result.StopReason {
	case agent.StopMaxIterations:
		return fmt.Sprintf("agent reached the iteration limit (%d) without completing the task", result.Iterations)
	case agent.StopConsecutiveErrors:
		return "agent stopped after repeated consecutive errors"
	default:
		return fmt.Sprintf("agent stopped: %s", result.StopReason)
	}
}

// scheduleEviction removes the record and the workspace once the grace
// period elapses, keeping recent outcomes queryable in the meantime.
func (s *Service) scheduleEviction(taskID string, store *workspace.Store) {
	time.AfterFunc(s.cfg.EvictionGrace, func() {
		s.registry.Remove(taskID)
		if err := store.Cleanup(); err != nil {
			s.logger.Warn("Could not remove workspace for task %s: %v", taskID, err)
		}
		s.logger.Info("Task %s evicted after grace period", taskID)
	})
}

// WorkspaceDir returns the workspace directory of a task under root.
func WorkspaceDir(root, taskID string) string {
	return filepath.Join(root, workspacePrefix+taskID)
}

func (s *Service) workspacePath(taskID string) string {
	return WorkspaceDir(s.cfg.WorkspaceRoot, taskID)
}

func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
