// Package task owns the lifecycle of submitted tasks: intake validation,
// the process-wide registry, background execution of the agent loop, and
// webhook reporting back to the platform.
package task

import (
	"fmt"
	"strings"
	"time"
)

// Task statuses, in lifecycle order.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Accepted priorities. Priority is recorded but does not reorder the
// worker queue; admission is first come, first served.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Request is the task submission accepted on POST /tasks/execute.
type Request struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt"`
	Priority    string `json:"priority,omitempty"`
	UserID      string `json:"user_id"`
	ProjectID   string `json:"project_id,omitempty"`
}

// Validate checks the boundary requirements and normalizes the priority.
// The task_id becomes part of the workspace directory name, so path
// characters are rejected here.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.TaskID) == "" {
		return fmt.Errorf("task_id is required")
	}
	if strings.ContainsAny(r.TaskID, `/\`) || strings.Contains(r.TaskID, "..") {
		return fmt.Errorf("task_id contains path characters: %s", r.TaskID)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	switch r.Priority {
	case "":
		r.Priority = PriorityNormal
	case PriorityLow, PriorityNormal, PriorityHigh:
	default:
		return fmt.Errorf("priority must be low, normal or high, got %q", r.Priority)
	}
	return nil
}

// Record is the in-memory lifecycle state of one task, served verbatim by
// the status endpoint.
type Record struct {
	TaskID      string     `json:"task_id"`
	Status      string     `json:"status"`
	Title       string     `json:"title,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Iterations  int        `json:"iterations"`
}

// Terminal reports whether the record reached a final status.
func (r Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
