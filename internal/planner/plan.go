// Package planner turns a task prompt into a step plan and renders the
// progress document the agent rewrites after every iteration.
package planner

import (
	"fmt"
	"strings"
	"time"
)

// StepStatus is the lifecycle state of one plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step types drive model routing per iteration.
const (
	StepTypeResearch      = "research"
	StepTypeBrowser       = "browser"
	StepTypeAnalysis      = "analysis"
	StepTypeFileOperation = "file_operation"
	StepTypeCode          = "code"
	StepTypeGeneral       = "general"
)

// PlanStatus is the lifecycle state of the plan as a whole.
type PlanStatus string

const (
	PlanActive PlanStatus = "active"
	PlanDone   PlanStatus = "done"
)

// Step is one unit of the plan. Steps never reorder after creation.
type Step struct {
	Description string
	Type        string
	Status      StepStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Observation string
}

// Plan is an ordered step list for one task.
type Plan struct {
	Task      string
	CreatedAt time.Time
	Steps     []Step
	Status    PlanStatus
}

// CurrentStep returns the first pending step, or nil when none remain.
func (p *Plan) CurrentStep() *Step {
	for i := range p.Steps {
		if p.Steps[i].Status == StepPending {
			return &p.Steps[i]
		}
	}
	return nil
}

// MarkCompleted records a successful step with its observation.
func (p *Plan) MarkCompleted(i int, observation string) error {
	if err := p.checkIndex(i); err != nil {
		return err
	}
	now := time.Now()
	step := &p.Steps[i]
	if step.StartedAt.IsZero() {
		step.StartedAt = now
	}
	step.Status = StepCompleted
	step.CompletedAt = now
	step.Observation = observation
	if p.IsComplete() {
		p.Status = PlanDone
	}
	return nil
}

// MarkFailed records a failed step with the error text as its observation.
func (p *Plan) MarkFailed(i int, errText string) error {
	if err := p.checkIndex(i); err != nil {
		return err
	}
	now := time.Now()
	step := &p.Steps[i]
	if step.StartedAt.IsZero() {
		step.StartedAt = now
	}
	step.Status = StepFailed
	step.CompletedAt = now
	step.Observation = errText
	return nil
}

// IsComplete reports whether every step completed.
func (p *Plan) IsComplete() bool {
	for i := range p.Steps {
		if p.Steps[i].Status != StepCompleted {
			return false
		}
	}
	return len(p.Steps) > 0
}

// CompletedCount returns the number of completed steps.
func (p *Plan) CompletedCount() int {
	count := 0
	for i := range p.Steps {
		if p.Steps[i].Status == StepCompleted {
			count++
		}
	}
	return count
}

func (p *Plan) checkIndex(i int) error {
	if i < 0 || i >= len(p.Steps) {
		return fmt.Errorf("step index %d out of range (plan has %d steps)", i, len(p.Steps))
	}
	return nil
}

const observationPreviewLimit = 200

// RenderProgress renders the plan as the todo.md progress document. The
// output is a pure function of the plan state so an unchanged plan renders
// byte-identical, which keeps the rewrite-every-iteration loop cheap to diff.
func RenderProgress(p *Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task: %s\n\n", p.Task)
	fmt.Fprintf(&b, "Created: %s\n\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
	b.WriteString("## Steps\n\n")

	for i := range p.Steps {
		step := &p.Steps[i]
		mark := " "
		if step.Status == StepCompleted {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %d. %s (%s)\n", mark, i+1, step.Description, step.Type)
		if step.Observation != "" {
			fmt.Fprintf(&b, "  > %s\n", previewObservation(step.Observation))
		}
	}

	fmt.Fprintf(&b, "\n## Progress\n\n%d/%d steps completed\n", p.CompletedCount(), len(p.Steps))

	return b.String()
}

// previewObservation flattens an observation to one line of at most 200
// characters.
func previewObservation(obs string) string {
	flat := strings.Join(strings.Fields(obs), " ")
	runes := []rune(flat)
	if len(runes) <= observationPreviewLimit {
		return flat
	}
	return string(runes[:observationPreviewLimit]) + "..."
}
