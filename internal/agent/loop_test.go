package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agenterrors "github.com/Mikeyy1405/Writgoai.nl/internal/errors"
	"github.com/Mikeyy1405/Writgoai.nl/internal/events"
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm"
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm/router"
	"github.com/Mikeyy1405/Writgoai.nl/internal/planner"
	"github.com/Mikeyy1405/Writgoai.nl/internal/sandbox"
	"github.com/Mikeyy1405/Writgoai.nl/internal/webfetch"
	"github.com/Mikeyy1405/Writgoai.nl/internal/workspace"
)

// scriptedResponse is one canned turn of the scripted model.
type scriptedResponse struct {
	resp *llm.CompletionResponse
	err  error
}

// scriptedLLM replays canned responses in order and records every request.
type scriptedLLM struct {
	t         *testing.T
	responses []scriptedResponse
	requests  []llm.CompletionRequest
}

func newScriptedLLM(t *testing.T, responses ...scriptedResponse) *scriptedLLM {
	return &scriptedLLM{t: t, responses: responses}
}

func (c *scriptedLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		c.t.Fatalf("unexpected completion request #%d: %+v", len(c.requests), req.Messages)
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.resp, nil
}

func (c *scriptedLLM) Model() string { return "scripted" }

func planOf(steps ...string) scriptedResponse {
	var b strings.Builder
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return scriptedResponse{resp: &llm.CompletionResponse{Content: b.String(), StopReason: "stop"}}
}

func toolCall(name string, args map[string]any) scriptedResponse {
	return scriptedResponse{resp: &llm.CompletionResponse{
		ToolCalls:  []llm.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
		StopReason: "tool_calls",
	}}
}

func textOnly(content string) scriptedResponse {
	return scriptedResponse{resp: &llm.CompletionResponse{Content: content, StopReason: "stop"}}
}

func llmFailure(err error) scriptedResponse {
	return scriptedResponse{err: err}
}

// stubDocker satisfies sandbox.Client without a daemon. Exec results are
// popped from a queue; an empty queue yields a quiet success.
type stubDocker struct {
	missingImage bool
	execResults  []sandbox.ExecResult
	execCmds     [][]string
	stopped      int
	removed      int
}

func (d *stubDocker) Ping(ctx context.Context) error { return nil }

func (d *stubDocker) ImageExists(ctx context.Context, image string) (bool, error) {
	return !d.missingImage, nil
}

func (d *stubDocker) CreateContainer(ctx context.Context, opts sandbox.CreateOpts) (string, error) {
	return "stub-container", nil
}

func (d *stubDocker) StartContainer(ctx context.Context, id string) error { return nil }

func (d *stubDocker) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	d.stopped++
	return nil
}

func (d *stubDocker) RemoveContainer(ctx context.Context, id string) error {
	d.removed++
	return nil
}

func (d *stubDocker) Exec(ctx context.Context, id string, cmd []string, timeout time.Duration) (*sandbox.ExecResult, error) {
	d.execCmds = append(d.execCmds, cmd)
	if len(d.execResults) == 0 {
		return &sandbox.ExecResult{Stdout: "ok\n"}, nil
	}
	result := d.execResults[0]
	d.execResults = d.execResults[1:]
	return &result, nil
}

// testRouter gives every tier a distinct model id so request assertions can
// tell tiers apart (the default table maps several tiers to the same id).
func testRouter() *router.Router {
	return router.New(map[router.Tier]string{
		router.TierDefault:  "model-default",
		router.TierComplex:  "model-complex",
		router.TierBalanced: "model-balanced",
		router.TierFast:     "model-fast",
		router.TierCoding:   "model-coding",
	})
}

type loopFixture struct {
	client *scriptedLLM
	docker *stubDocker
	store  *workspace.Store
	stream *events.Stream
	loop   *Loop
}

func newLoopFixture(t *testing.T, client *scriptedLLM, docker *stubDocker, opts Options) *loopFixture {
	t.Helper()

	store := workspace.NewStore(t.TempDir())
	stream := events.NewStream(0)
	rt := testRouter()

	opts.Client = client
	opts.Router = rt
	opts.Planner = planner.New(client, rt.ModelFor(router.TierComplex))
	opts.Sandbox = sandbox.New(docker, store, sandbox.Config{})
	opts.Store = store
	opts.Events = stream

	return &loopFixture{
		client: client,
		docker: docker,
		store:  store,
		stream: stream,
		loop:   New(opts),
	}
}

func observationContents(stream *events.Stream) []string {
	var out []string
	for _, e := range stream.ByType(events.TypeObservation) {
		out = append(out, e.Content)
	}
	return out
}

func TestRunCompletesWhenModelCallsComplete(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Write the findings to a report file"),
		toolCall("save_file", map[string]any{"filename": "report.md", "content": "# Findings\n\nAll good."}),
		toolCall("complete", map[string]any{"summary": "report written", "output_files": []any{"report.md"}}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Summarize the findings")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, StopCompleted, result.StopReason)
	assert.Equal(t, "report written", result.Summary)
	assert.Equal(t, 2, result.Iterations)

	assert.Equal(t, []string{"report.md", "todo.md"}, result.Files)
	assert.Equal(t, "# Findings\n\nAll good.", result.ResultData["report.md"])
	assert.Contains(t, result.ResultData["todo.md"], "Write the findings to a report file")

	require.NotEmpty(t, result.FinalObservations)
	assert.Equal(t, "File saved: report.md", result.FinalObservations[len(result.FinalObservations)-1].Content)

	// The sandbox must be torn down on the way out.
	assert.Equal(t, 1, docker.stopped)
	assert.Equal(t, 1, docker.removed)

	// First request plans, the rest drive iterations with the full catalog.
	require.Len(t, client.requests, 3)
	assert.Contains(t, client.requests[0].Messages[0].Content, "Break the following task")
	assert.Empty(t, client.requests[0].Tools)
	assert.Len(t, client.requests[1].Tools, 8)
	assert.Equal(t, "system", client.requests[1].Messages[0].Role)
	assert.Contains(t, client.requests[1].Messages[0].Content, "WritGo.nl AI Agent")
	assert.Contains(t, client.requests[1].Messages[1].Content, "What is your next action?")

	all := fx.stream.All()
	require.NotEmpty(t, all)
	assert.Equal(t, events.TypeTask, all[0].Type)
	assert.Equal(t, "Summarize the findings", all[0].Content)
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Analyze the collected data"),
		toolCall("execute_python", map[string]any{"code": "print('step 1')"}),
		toolCall("execute_python", map[string]any{"code": "print('step 2')"}),
		toolCall("execute_python", map[string]any{"code": "print('step 3')"}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{MaxIterations: 3})

	result, err := fx.loop.Run(context.Background(), "Keep crunching numbers")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, StopMaxIterations, result.StopReason)
	assert.Equal(t, 3, result.Iterations)
	assert.Len(t, docker.execCmds, 3)
	assert.Equal(t, 1, docker.stopped)
}

func TestRunFailsAfterConsecutiveErrors(t *testing.T) {
	failure := sandbox.ExecResult{Stderr: "bash: crunch: command not found", ExitCode: 127}
	client := newScriptedLLM(t,
		planOf("Analyze the collected data"),
		toolCall("shell_command", map[string]any{"command": "crunch data.csv"}),
		textOnly("The crunch binary is not installed; install it or use python."),
		toolCall("shell_command", map[string]any{"command": "crunch data.csv"}),
		textOnly("Still missing; try pip install crunch."),
		toolCall("shell_command", map[string]any{"command": "crunch data.csv"}),
	)
	docker := &stubDocker{execResults: []sandbox.ExecResult{failure, failure, failure}}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Crunch the numbers")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, StopConsecutiveErrors, result.StopReason)
	assert.Equal(t, 3, result.Iterations)

	// Two recovery diagnoses: after the first and second failure, none
	// after the third because the run stops there.
	recoveries := fx.stream.ByType(events.TypeRecovery)
	require.Len(t, recoveries, 2)
	assert.Equal(t, "The crunch binary is not installed; install it or use python.", recoveries[0].Content)

	// Recovery requests go to the balanced tier at low temperature.
	recoveryReq := client.requests[2]
	assert.Equal(t, "model-balanced", recoveryReq.Model)
	assert.InDelta(t, 0.3, recoveryReq.Temperature, 0.001)
	assert.Contains(t, recoveryReq.Messages[0].Content, "Diagnose the error")
	assert.Contains(t, recoveryReq.Messages[0].Content, "command not found")

	assert.Equal(t, 1, docker.stopped)
}

func TestRunErrorCounterResetsOnSuccess(t *testing.T) {
	failure := sandbox.ExecResult{Stderr: "Traceback (most recent call last):", ExitCode: 1}
	client := newScriptedLLM(t,
		planOf("Analyze the collected data"),
		toolCall("execute_python", map[string]any{"code": "1/0"}),
		textOnly("Division by zero; guard the denominator."),
		toolCall("execute_python", map[string]any{"code": "print('recovered')"}),
		toolCall("execute_python", map[string]any{"code": "1/0"}),
		textOnly("Same division bug."),
		toolCall("execute_python", map[string]any{"code": "1/0"}),
		textOnly("Same division bug again."),
		toolCall("complete", map[string]any{"summary": "gave up on the flaky branch"}),
	)
	docker := &stubDocker{execResults: []sandbox.ExecResult{
		failure,
		{Stdout: "recovered\n"},
		failure,
		failure,
	}}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Survive flaky code")
	require.NoError(t, err)

	// Two consecutive failures after the reset never reach the cap of three.
	assert.True(t, result.Success)
	assert.Equal(t, StopCompleted, result.StopReason)
	assert.Equal(t, 5, result.Iterations)
	assert.Len(t, fx.stream.ByType(events.TypeRecovery), 3)
}

func TestRunTreatsLLMFailureAsObservation(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Search for current pricing"),
		llmFailure(agenterrors.NewTransientError(errors.New("429"), "Rate limited by gateway")),
		textOnly("Wait for the quota window to pass, then retry."),
		toolCall("complete", map[string]any{"summary": "done after retry"}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Price lookup")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Iterations)

	obs := observationContents(fx.stream)
	require.NotEmpty(t, obs)
	assert.Equal(t, "Error: Rate limited by gateway", obs[0])

	actions := fx.stream.ByType(events.TypeAction)
	require.NotEmpty(t, actions)
	assert.Equal(t, "llm", actions[0].Content)

	recoveries := fx.stream.ByType(events.TypeRecovery)
	require.Len(t, recoveries, 1)
	assert.Equal(t, "Wait for the quota window to pass, then retry.", recoveries[0].Content)
}

func TestRunCancelledContextStopsTheRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newScriptedLLM(t,
		planOf("Analyze the collected data"),
		scriptedResponse{err: context.Canceled},
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	// The scripted failure stands in for the in-flight call observing the
	// cancel; Run must report it instead of recording an observation.
	cancel()
	result, err := fx.loop.Run(ctx, "Cancelled mid-flight")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 1, docker.stopped, "sandbox must stop on the error path too")
}

func TestRunNoToolCallBecomesObservation(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Analyze the collected data"),
		textOnly("I think I should look at the data first."),
		toolCall("complete", map[string]any{"summary": "done"}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Describe the data")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, observationContents(fx.stream), noActionObservation)
	// Not an error, so no recovery request: plan + 2 iterations only.
	assert.Len(t, client.requests, 3)
}

func TestRunUnknownActionBecomesObservation(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Analyze the collected data"),
		toolCall("teleport", map[string]any{"dest": "moon"}),
		toolCall("complete", map[string]any{"summary": "done"}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Strange model day")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, observationContents(fx.stream), "Unknown action type: teleport")
	assert.Empty(t, docker.execCmds)
	assert.Len(t, client.requests, 3)
}

func TestRunUsesOnlyFirstToolCall(t *testing.T) {
	multi := scriptedResponse{resp: &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{
			{ID: "a", Name: "save_file", Arguments: map[string]any{"filename": "one.txt", "content": "first"}},
			{ID: "b", Name: "execute_python", Arguments: map[string]any{"code": "print('second')"}},
		},
		StopReason: "tool_calls",
	}}
	client := newScriptedLLM(t,
		planOf("Write the findings to a report file"),
		multi,
		toolCall("complete", map[string]any{}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	_, err := fx.loop.Run(context.Background(), "One action per turn")
	require.NoError(t, err)

	assert.Contains(t, observationContents(fx.stream), "File saved: one.txt")
	assert.Empty(t, docker.execCmds, "the second tool call must not run")
}

func TestRunSaveThenReadRoundTrip(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Write the findings to a report file"),
		toolCall("save_file", map[string]any{"filename": "notes.md", "content": "# Notes\n\nRemember the units."}),
		toolCall("read_file", map[string]any{"filename": "notes.md"}),
		toolCall("complete", map[string]any{"summary": "done"}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Keep notes")
	require.NoError(t, err)

	obs := observationContents(fx.stream)
	assert.Contains(t, obs, "File saved: notes.md")
	assert.Contains(t, obs, "# Notes\n\nRemember the units.")
	assert.True(t, result.Success)
}

func TestRunReadMissingFileIsObservedNotFatal(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Analyze the collected data"),
		toolCall("read_file", map[string]any{"filename": "ghost.txt"}),
		toolCall("complete", map[string]any{"summary": "done"}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Read something missing")
	require.NoError(t, err)
	assert.True(t, result.Success)

	obs := observationContents(fx.stream)
	require.NotEmpty(t, obs)
	assert.Contains(t, obs[0], "Error executing read_file")
	assert.Contains(t, obs[0], "ghost.txt")
}

func TestRunServesRepeatedFetchFromObservationCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Pricing</title></head><body><p>`+
			strings.Repeat("The premium plan costs twelve euros per seat. ", 3)+
			`</p></body></html>`)
	}))
	defer srv.Close()

	client := newScriptedLLM(t,
		planOf("Search for current pricing"),
		toolCall("fetch_url", map[string]any{"url": srv.URL}),
		toolCall("fetch_url", map[string]any{"url": srv.URL}),
		toolCall("complete", map[string]any{"summary": "priced"}),
	)
	docker := &stubDocker{}
	// A nanosecond TTL disables the fetcher's own page cache, so a single
	// upstream hit proves the observation cache answered the second call.
	fx := newLoopFixture(t, client, docker, Options{
		Fetcher: webfetch.New(webfetch.Config{CacheTTL: time.Nanosecond, Timeout: 5 * time.Second}),
	})

	result, err := fx.loop.Run(context.Background(), "Check pricing twice")
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.Equal(t, int32(1), hits.Load())

	obs := observationContents(fx.stream)
	require.Len(t, obs, 2)
	assert.Equal(t, obs[0], obs[1])
	assert.Contains(t, obs[0], "Source: ")
	assert.Contains(t, obs[0], "# Pricing")
}

func TestRunWritesProgressDocument(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Search for current pricing", "Write the findings to a report file"),
		toolCall("complete", map[string]any{"summary": "done"}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	_, err := fx.loop.Run(context.Background(), "Track progress")
	require.NoError(t, err)

	todo, err := fx.store.Read("todo.md")
	require.NoError(t, err)
	assert.Contains(t, todo, "# Task: Track progress")
	assert.Contains(t, todo, "- [ ] 1. Search for current pricing (research)")
	assert.Contains(t, todo, "- [ ] 2. Write the findings to a report file (file_operation)")
	assert.Contains(t, todo, "0/2 steps completed")
}

func TestRunRoutesCurrentStepType(t *testing.T) {
	client := newScriptedLLM(t,
		planOf("Analyze the collected data"),
		toolCall("complete", map[string]any{"summary": "done"}),
	)
	docker := &stubDocker{}
	fx := newLoopFixture(t, client, docker, Options{})

	_, err := fx.loop.Run(context.Background(), "Route me")
	require.NoError(t, err)

	// Analysis step at base complexity 0.8 routes to the complex tier.
	require.Len(t, client.requests, 2)
	assert.Equal(t, "model-complex", client.requests[1].Model)
}

func TestRunSandboxStartFailureFailsBeforePlanning(t *testing.T) {
	client := newScriptedLLM(t)
	docker := &stubDocker{missingImage: true}
	fx := newLoopFixture(t, client, docker, Options{})

	result, err := fx.loop.Run(context.Background(), "Never starts")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "writgo-agent-sandbox:latest")
	assert.Empty(t, client.requests, "no model calls before the sandbox is up")
}
