// Package events holds the bounded append-only memory the agent loop uses
// to reconstruct its context each iteration.
package events

import "time"

// Type classifies an event.
type Type string

const (
	TypeTask        Type = "task"
	TypeAction      Type = "action"
	TypeObservation Type = "observation"
	TypeRecovery    Type = "recovery"
)

// Event is one entry in the stream. Events are never mutated after append.
type Event struct {
	Type      Type      `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultCapacity bounds the stream; the oldest entry is dropped beyond it.
const DefaultCapacity = 1000

// Stream is a bounded append-only event sequence. It is owned by the single
// goroutine driving one agent loop and is deliberately unsynchronized.
type Stream struct {
	events   []Event
	capacity int
}

// NewStream creates a stream with the given capacity; zero or negative
// capacity falls back to DefaultCapacity.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stream{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// Append adds an event, stamping the timestamp if unset. When the stream is
// full the oldest event is discarded.
func (s *Stream) Append(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if len(s.events) >= s.capacity {
		copy(s.events, s.events[1:])
		s.events[len(s.events)-1] = e
		return
	}
	s.events = append(s.events, e)
}

// Add is shorthand for appending a typed event with the current time.
func (s *Stream) Add(t Type, content string) {
	s.Append(Event{Type: t, Content: content})
}

// Recent returns the last k events in insertion order. k larger than the
// stream returns everything.
func (s *Stream) Recent(k int) []Event {
	if k <= 0 {
		return nil
	}
	if k > len(s.events) {
		k = len(s.events)
	}
	out := make([]Event, k)
	copy(out, s.events[len(s.events)-k:])
	return out
}

// ByType returns all events of the given type in insertion order.
func (s *Stream) ByType(t Type) []Event {
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// All returns a copy of every retained event in insertion order.
func (s *Stream) All() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Summary returns the count of retained events per type.
func (s *Stream) Summary() map[Type]int {
	counts := make(map[Type]int, 4)
	for _, e := range s.events {
		counts[e.Type]++
	}
	return counts
}

// Len returns the number of retained events.
func (s *Stream) Len() int {
	return len(s.events)
}
