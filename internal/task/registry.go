package task

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDuplicateTask rejects a task_id that is already live in the registry.
var ErrDuplicateTask = errors.New("task already exists")

// Registry is the process-wide task_id to record mapping. HTTP handlers and
// background workers touch it concurrently; every mutation goes through it.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Register inserts a queued record for the request. A task_id is accepted
// at most once while its record is present.
func (r *Registry) Register(req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[req.TaskID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, req.TaskID)
	}
	r.records[req.TaskID] = &Record{
		TaskID:    req.TaskID,
		Status:    StatusQueued,
		Title:     req.Title,
		Priority:  req.Priority,
		StartedAt: time.Now(),
	}
	return nil
}

// Get returns a copy of the record for the id.
func (r *Registry) Get(taskID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[taskID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// SetRunning marks the task running.
func (r *Registry) SetRunning(taskID string) {
	r.update(taskID, func(rec *Record) {
		rec.Status = StatusRunning
	})
}

// SetCompleted marks the task completed and stamps the finish time.
func (r *Registry) SetCompleted(taskID string) {
	now := time.Now()
	r.update(taskID, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.CompletedAt = &now
	})
}

// SetFailed marks the task failed with the reported cause.
func (r *Registry) SetFailed(taskID, errMsg string) {
	now := time.Now()
	r.update(taskID, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Error = errMsg
		rec.CompletedAt = &now
	})
}

// SetIterations records how many loop iterations the task consumed.
func (r *Registry) SetIterations(taskID string, iterations int) {
	r.update(taskID, func(rec *Record) {
		rec.Iterations = iterations
	})
}

// Remove evicts the record. Unknown ids are ignored.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, taskID)
}

// Len reports how many records are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *Registry) update(taskID string, mutate func(*Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[taskID]; ok {
		mutate(rec)
	}
}
