package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Mikeyy1405/Writgoai.nl/internal/llm"
	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
)

var stepLinePattern = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.+)$`)

// Planner asks the model to break a task into steps.
type Planner struct {
	client llm.Client
	model  string
	logger logging.Logger
}

// New creates a Planner. model should be the complex-tier model; planning is
// the one call per task where reasoning quality beats latency.
func New(client llm.Client, model string) *Planner {
	return &Planner{
		client: client,
		model:  model,
		logger: logging.NewComponentLogger("planner"),
	}
}

const planPrompt = `Break the following task into a short numbered list of concrete steps.

Task: %s

Rules:
- One step per line, numbered like "1." or "1)".
- Use 3 to 7 steps for typical tasks, fewer for trivial ones.
- Each step must be a single action an autonomous agent can take.
- No commentary before or after the list.`

// CreatePlan sends one completion and parses the numbered list it returns.
// An unparseable response degrades to a single general step carrying the
// raw task, so the loop always has a plan to work against.
func (p *Planner) CreatePlan(ctx context.Context, task string) (*Plan, error) {
	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		Model:       p.model,
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(planPrompt, task)}},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	steps := parseSteps(resp.Content)
	if len(steps) == 0 {
		p.logger.Warn("Plan response had no numbered steps, falling back to a single step")
		steps = []Step{{
			Description: task,
			Type:        StepTypeGeneral,
			Status:      StepPending,
		}}
	}

	p.logger.Info("Plan created with %d steps", len(steps))

	return &Plan{
		Task:      task,
		CreatedAt: time.Now(),
		Steps:     steps,
		Status:    PlanActive,
	}, nil
}

// parseSteps extracts numbered lines ("1. text" or "1) text") in order.
func parseSteps(content string) []Step {
	var steps []Step
	for _, line := range strings.Split(content, "\n") {
		match := stepLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		text := strings.TrimSpace(match[2])
		if text == "" {
			continue
		}
		steps = append(steps, Step{
			Description: text,
			Type:        classifyStepType(text),
			Status:      StepPending,
		})
	}
	return steps
}

// classifyStepType assigns a routing type from the step text. First matching
// rule wins; the rule order is part of the contract.
func classifyStepType(text string) string {
	lower := strings.ToLower(text)

	contains := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("search", "find information"):
		return StepTypeResearch
	case contains("scrape", "browser", "navigate", "website"):
		return StepTypeBrowser
	case contains("analyze", "process", "calculate"):
		return StepTypeAnalysis
	case contains("write", "create file", "save", "generate"):
		return StepTypeFileOperation
	case contains("code", "script", "program"):
		return StepTypeCode
	default:
		return StepTypeGeneral
	}
}
