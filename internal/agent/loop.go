package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mikeyy1405/Writgoai.nl/internal/diff"
	agenterrors "github.com/Mikeyy1405/Writgoai.nl/internal/errors"
	"github.com/Mikeyy1405/Writgoai.nl/internal/events"
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm"
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm/router"
	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
	"github.com/Mikeyy1405/Writgoai.nl/internal/observability"
	"github.com/Mikeyy1405/Writgoai.nl/internal/planner"
	"github.com/Mikeyy1405/Writgoai.nl/internal/sandbox"
	"github.com/Mikeyy1405/Writgoai.nl/internal/webfetch"
	"github.com/Mikeyy1405/Writgoai.nl/internal/workspace"
)

const (
	// DefaultMaxIterations caps the loop when configuration does not.
	DefaultMaxIterations = 50

	// ProgressFilename is the workspace file holding the rendered plan.
	ProgressFilename = "todo.md"

	maxConsecutiveErrors  = 3
	recentEventWindow     = 20
	finalObservationCount = 5
	sandboxStopTimeout    = 30 * time.Second
)

// Stop reasons reported in Result.StopReason.
const (
	StopCompleted         = "completed"
	StopPlanComplete      = "plan_complete"
	StopMaxIterations     = "max_iterations"
	StopConsecutiveErrors = "consecutive_errors"
)

const noActionObservation = "No action returned; respond with exactly one tool call."

// resultExtensions selects the workspace files returned inline in the result.
var resultExtensions = []string{".json", ".md", ".txt", ".csv"}

// Result is the terminal outcome of one loop run.
type Result struct {
	Success           bool
	Summary           string
	StopReason        string
	Iterations        int
	Files             []string
	ResultData        map[string]string
	FinalObservations []events.Event
}

// Options wires a Loop's collaborators. Client, Router, Planner, Sandbox and
// Store are required; the remaining fields fall back to defaults.
type Options struct {
	Client        llm.Client
	Router        *router.Router
	Planner       *planner.Planner
	Sandbox       *sandbox.Sandbox
	Store         *workspace.Store
	Fetcher       *webfetch.Fetcher
	Events        *events.Stream
	Cache         *ObservationCache
	Metrics       *observability.MetricsCollector
	MaxIterations int
}

// Loop drives one task through plan, act, observe iterations until the model
// declares completion or a limit trips. A Loop runs exactly one task; the
// event stream, workspace and sandbox it holds belong to that task alone.
type Loop struct {
	client        llm.Client
	router        *router.Router
	planner       *planner.Planner
	sandbox       *sandbox.Sandbox
	store         *workspace.Store
	fetcher       *webfetch.Fetcher
	events        *events.Stream
	cache         *ObservationCache
	metrics       *observability.MetricsCollector
	diff          *diff.Generator
	tracer        trace.Tracer
	logger        logging.Logger
	maxIterations int
}

// New assembles a loop from its collaborators.
func New(opts Options) *Loop {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Events == nil {
		opts.Events = events.NewStream(0)
	}
	if opts.Cache == nil {
		opts.Cache = NewObservationCache(0, 0)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = webfetch.New(webfetch.Config{})
	}
	return &Loop{
		client:        opts.Client,
		router:        opts.Router,
		planner:       opts.Planner,
		sandbox:       opts.Sandbox,
		store:         opts.Store,
		fetcher:       opts.Fetcher,
		events:        opts.Events,
		cache:         opts.Cache,
		metrics:       opts.Metrics,
		diff:          diff.NewGenerator(false),
		tracer:        otel.Tracer("vps-agent"),
		logger:        logging.NewComponentLogger("agent"),
		maxIterations: opts.MaxIterations,
	}
}

// runState carries the mutable loop position between iterations.
type runState struct {
	task              string
	plan              *planner.Plan
	iteration         int
	consecutiveErrors int
}

// Run executes the task until the model calls complete, the plan finishes,
// the iteration cap is hit, or three consecutive error observations occur.
// The returned error is reserved for failures before the loop can start and
// for context cancellation; everything the model can recover from becomes an
// observation instead.
func (l *Loop) Run(ctx context.Context, task string) (*Result, error) {
	l.logger.Info("Starting agent loop for task: %s...", preview(task, 100))

	if err := l.sandbox.Start(ctx); err != nil {
		return nil, fmt.Errorf("start sandbox: %w", err)
	}
	defer func() {
		// The run context may already be dead; stopping the container gets
		// its own deadline so cleanup still happens.
		stopCtx, cancel := context.WithTimeout(context.Background(), sandboxStopTimeout)
		defer cancel()
		l.sandbox.Stop(stopCtx)
	}()

	plan, err := l.planner.CreatePlan(ctx, task)
	if err != nil {
		return nil, err
	}
	if err := l.refreshProgress(plan); err != nil {
		return nil, fmt.Errorf("write progress document: %w", err)
	}

	l.events.Add(events.TypeTask, task)

	st := &runState{task: task, plan: plan}

	for st.iteration < l.maxIterations {
		st.iteration++

		stopReason, summary, err := l.iterate(ctx, st)
		if err != nil {
			return nil, err
		}
		if stopReason != "" {
			success := stopReason == StopCompleted || stopReason == StopPlanComplete
			return l.finish(success, summary, stopReason, st.iteration), nil
		}
	}

	l.logger.Error("Iteration limit reached (%d), stopping", l.maxIterations)
	return l.finish(false, "", StopMaxIterations, st.iteration), nil
}

// iterate runs one loop turn. It returns a non-empty stop reason when the
// run must end; the error return is reserved for context cancellation.
func (l *Loop) iterate(ctx context.Context, st *runState) (stopReason, summary string, err error) {
	ctx, span := l.tracer.Start(ctx, observability.SpanAgentIteration,
		trace.WithAttributes(observability.IterationAttrs(st.iteration)...))
	defer span.End()

	l.logger.Info("Iteration %d/%d", st.iteration, l.maxIterations)

	resp, llmErr := l.requestCompletion(ctx, st)
	if llmErr != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		observation := "Error: " + agenterrors.FormatForModel(llmErr)
		return l.recordOutcome(ctx, st, "llm", observation), "", nil
	}
	if len(resp.ToolCalls) == 0 {
		return l.recordOutcome(ctx, st, "llm", noActionObservation), "", nil
	}

	action := DecodeAction(resp.ToolCalls[0])

	if done, ok := action.(Complete); ok {
		l.logger.Info("Task marked as complete by agent")
		if len(done.OutputFiles) > 0 {
			l.logger.Debug("Agent reported output files: %s", strings.Join(done.OutputFiles, ", "))
		}
		return StopCompleted, done.Summary, nil
	}

	observation := l.executeAction(ctx, action)
	return l.recordOutcome(ctx, st, action.Kind(), observation), "", nil
}

// recordOutcome appends the action/observation pair to the event stream,
// refreshes the progress document, and applies the consecutive-error policy.
func (l *Loop) recordOutcome(ctx context.Context, st *runState, actionName, observation string) (stopReason string) {
	l.events.Add(events.TypeAction, actionName)
	l.events.Add(events.TypeObservation, observation)

	if err := l.refreshProgress(st.plan); err != nil {
		l.logger.Warn("Could not write progress document: %v", err)
	}

	if IsErrorObservation(observation) {
		st.consecutiveErrors++
		l.logger.Warn("Error in iteration %d: %s", st.iteration, preview(observation, 200))

		if st.consecutiveErrors >= maxConsecutiveErrors {
			l.logger.Error("Too many consecutive errors, stopping")
			return StopConsecutiveErrors
		}
		l.events.Add(events.TypeRecovery, l.diagnose(ctx, actionName, observation))
	} else {
		st.consecutiveErrors = 0
	}

	// The loop never marks steps itself; this fires only when something
	// outside the iteration path completed the plan.
	if st.plan.IsComplete() {
		l.logger.Info("All plan steps completed")
		return StopPlanComplete
	}
	return ""
}

// requestCompletion routes the current step to a model and asks it for the
// next action.
func (l *Loop) requestCompletion(ctx context.Context, st *runState) (*llm.CompletionResponse, error) {
	recent := l.events.Recent(recentEventWindow)

	stepType := planner.StepTypeGeneral
	if step := st.plan.CurrentStep(); step != nil {
		stepType = step.Type
	}
	model := l.router.Select(stepType, EstimateComplexity(stepType, recent))
	l.logger.Info("Using model: %s", model)

	files, err := l.store.List("*")
	if err != nil {
		l.logger.Warn("Workspace listing failed: %v", err)
	}

	return l.complete(ctx, llm.CompletionRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: contextPrompt(st.task, st.plan, recent, files)},
		},
		Tools: Catalog(),
	})
}

// complete runs one completion with its span and metrics bookkeeping.
func (l *Loop) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := l.tracer.Start(ctx, observability.SpanLLMComplete,
		trace.WithAttributes(attribute.String(observability.AttrModel, req.Model)))
	defer span.End()

	start := time.Now()
	resp, err := l.client.Complete(ctx, req)
	latency := time.Since(start)

	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
		l.metrics.RecordLLMRequest(ctx, req.Model, "error", latency, 0, 0)
		return nil, err
	}
	l.metrics.RecordLLMRequest(ctx, req.Model, "ok", latency,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

// executeAction dispatches one action and returns the observation. Executor
// errors are folded into the observation text so the model sees them; the
// observation cache serves repeated read-only actions.
func (l *Loop) executeAction(ctx context.Context, action Action) string {
	kind := action.Kind()

	key := l.cache.Key(action)
	if obs, ok := l.cache.Get(key); ok {
		l.logger.Debug("Observation cache hit for %s", kind)
		return obs
	}

	ctx, span := l.tracer.Start(ctx, observability.SpanActionDispatch,
		trace.WithAttributes(observability.ActionAttrs(kind)...))
	defer span.End()

	start := time.Now()
	observation, err := l.runAction(ctx, action)
	if err != nil {
		observation = fmt.Sprintf("Error executing %s: %v", kind, err)
	}

	status := "ok"
	if err != nil || IsErrorObservation(observation) {
		status = "error"
	}
	span.SetAttributes(observability.StatusAttrs(status)...)
	l.metrics.RecordAction(ctx, kind, status, time.Since(start))

	if status == "ok" {
		l.cache.Put(key, observation)
	}
	return observation
}

func (l *Loop) runAction(ctx context.Context, action Action) (string, error) {
	switch a := action.(type) {
	case ExecutePython:
		return l.sandbox.ExecutePython(ctx, a.Code)

	case ShellCommand:
		return l.sandbox.ExecuteShell(ctx, a.Command)

	case BrowserNavigate:
		return l.sandbox.BrowserAction(ctx, a.URL, a.Op, a.Selector, a.Value)

	case WebSearch:
		return l.sandbox.WebSearch(ctx, a.Query, a.NumResults)

	case FetchURL:
		res, err := l.fetcher.Fetch(ctx, a.URL)
		if err != nil {
			return "", err
		}
		if res.Redirected {
			return res.Content, nil
		}
		return fmt.Sprintf("Source: %s\n\n%s", res.URL, res.Content), nil

	case SaveFile:
		if err := l.store.Save(a.Filename, a.Content); err != nil {
			return "", err
		}
		l.cache.InvalidateFile(a.Filename)
		return fmt.Sprintf("File saved: %s", a.Filename), nil

	case ReadFile:
		return l.store.Read(a.Filename)

	case Unknown:
		if a.Reason != "" {
			return a.Reason, nil
		}
		return fmt.Sprintf("Unknown action type: %s", a.Tool), nil

	default:
		return fmt.Sprintf("Unknown action type: %s", action.Kind()), nil
	}
}

const recoveryPromptFmt = `The following action failed:
%s

Error output:
%s

Diagnose the error and suggest how to fix it.`

const recoveryFallback = "Unable to diagnose error"

// diagnose asks a balanced-tier model to explain a failed action. The reply
// lands in the event stream so the next iteration sees the diagnosis.
func (l *Loop) diagnose(ctx context.Context, actionName, observation string) string {
	resp, err := l.complete(ctx, llm.CompletionRequest{
		Model:       l.router.Select("analysis", 0.5),
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(recoveryPromptFmt, actionName, observation)}},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil || resp.Content == "" {
		return recoveryFallback
	}
	return resp.Content
}

// refreshProgress rewrites todo.md from the plan state. When the file holds
// different content (the model may edit it through save_file) the change is
// logged as a unified diff at debug level before the rewrite.
func (l *Loop) refreshProgress(plan *planner.Plan) error {
	rendered := planner.RenderProgress(plan)

	previous, err := l.store.Read(ProgressFilename)
	if err != nil && !errors.Is(err, workspace.ErrNotFound) {
		return err
	}
	if previous == rendered {
		return nil
	}
	if previous != "" {
		result := l.diff.GenerateUnified(previous, rendered, ProgressFilename)
		l.logger.Debug("Progress document rewritten (%s)\n%s", result.FormatSummary(), result.Unified)
	}
	if err := l.store.Save(ProgressFilename, rendered); err != nil {
		return err
	}
	l.cache.InvalidateFile(ProgressFilename)
	return nil
}

// finish assembles the terminal result from the workspace and event stream.
func (l *Loop) finish(success bool, summary, stopReason string, iterations int) *Result {
	files, resultData := l.collectArtifacts()

	observations := l.events.ByType(events.TypeObservation)
	if len(observations) > finalObservationCount {
		observations = observations[len(observations)-finalObservationCount:]
	}

	return &Result{
		Success:           success,
		Summary:           summary,
		StopReason:        stopReason,
		Iterations:        iterations,
		Files:             files,
		ResultData:        resultData,
		FinalObservations: observations,
	}
}

// collectArtifacts lists the workspace and reads back every text-like
// artifact (.json, .md, .txt, .csv) for the result payload.
func (l *Loop) collectArtifacts() ([]string, map[string]string) {
	files, err := l.store.List("*")
	if err != nil {
		l.logger.Warn("Workspace listing failed: %v", err)
		return nil, nil
	}

	resultData := make(map[string]string)
	for _, name := range files {
		if !hasResultExtension(name) {
			continue
		}
		content, err := l.store.Read(name)
		if err != nil {
			l.logger.Warn("Could not read artifact %s: %v", name, err)
			continue
		}
		resultData[name] = content
	}
	return files, resultData
}

func hasResultExtension(name string) bool {
	for _, ext := range resultExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
