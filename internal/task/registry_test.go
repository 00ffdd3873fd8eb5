package task

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Request{TaskID: "T-1", Title: "Research", Priority: PriorityHigh, Prompt: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ok := r.Get("T-1")
	if !ok {
		t.Fatal("expected record for T-1")
	}
	if rec.Status != StatusQueued {
		t.Errorf("expected status queued, got %s", rec.Status)
	}
	if rec.Title != "Research" {
		t.Errorf("expected title Research, got %s", rec.Title)
	}
	if rec.Priority != PriorityHigh {
		t.Errorf("expected priority high, got %s", rec.Priority)
	}
	if rec.StartedAt.IsZero() {
		t.Error("expected StartedAt to be stamped")
	}
	if rec.CompletedAt != nil {
		t.Error("expected no CompletedAt on a queued record")
	}
}

func TestRegistryRejectsDuplicateLiveID(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Request{TaskID: "T-1", Prompt: "go"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := r.Register(Request{TaskID: "T-1", Prompt: "again"})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}

	// After eviction the id is accepted again.
	r.Remove("T-1")
	if err := r.Register(Request{TaskID: "T-1", Prompt: "go"}); err != nil {
		t.Fatalf("unexpected error after removal: %v", err)
	}
}

func TestRegistryLifecycleTransitions(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Request{TaskID: "T-1", Prompt: "go"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.SetRunning("T-1")
	rec, _ := r.Get("T-1")
	if rec.Status != StatusRunning {
		t.Fatalf("expected running, got %s", rec.Status)
	}
	if rec.Terminal() {
		t.Error("running record must not be terminal")
	}

	r.SetIterations("T-1", 7)
	r.SetCompleted("T-1")
	rec, _ = r.Get("T-1")
	if rec.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", rec.Status)
	}
	if rec.Iterations != 7 {
		t.Errorf("expected 7 iterations, got %d", rec.Iterations)
	}
	if rec.CompletedAt == nil {
		t.Error("expected CompletedAt on a completed record")
	}
	if !rec.Terminal() {
		t.Error("completed record must be terminal")
	}
}

func TestRegistrySetFailedRecordsCause(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Request{TaskID: "T-1", Prompt: "go"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.SetFailed("T-1", "sandbox image missing")
	rec, _ := r.Get("T-1")
	if rec.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
	if rec.Error != "sandbox image missing" {
		t.Errorf("unexpected error text: %s", rec.Error)
	}
	if rec.CompletedAt == nil {
		t.Error("expected CompletedAt on a failed record")
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Request{TaskID: "T-1", Prompt: "go"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := r.Get("T-1")
	rec.Status = StatusFailed
	rec.Error = "mutated"

	fresh, _ := r.Get("T-1")
	if fresh.Status != StatusQueued || fresh.Error != "" {
		t.Errorf("registry record leaked through Get: %+v", fresh)
	}
}

func TestRegistryMutationsOnUnknownIDAreNoOps(t *testing.T) {
	r := NewRegistry()

	r.SetRunning("ghost")
	r.SetCompleted("ghost")
	r.SetFailed("ghost", "nope")
	r.SetIterations("ghost", 3)
	r.Remove("ghost")

	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("T-%d", i)
			if err := r.Register(Request{TaskID: id, Prompt: "go"}); err != nil {
				t.Errorf("register %s: %v", id, err)
				return
			}
			r.SetRunning(id)
			r.SetCompleted(id)
			if _, ok := r.Get(id); !ok {
				t.Errorf("record %s vanished", id)
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Fatalf("expected 50 records, got %d", r.Len())
	}
}
