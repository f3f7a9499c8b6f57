// Package event defines the step-event shapes streamed to connected
// clients and an in-process bus that fans them out with per-thread
// ordering preserved.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the event envelope.
type Type string

// Event types delivered to clients.
const (
	// TypeStep carries one stage's output.
	TypeStep Type = "step"
	// TypeCompleted closes a successful run.
	TypeCompleted Type = "completed"
	// TypeInterrupted reports a run paused for authorization.
	TypeInterrupted Type = "interrupted"
	// TypeError closes a failed run.
	TypeError Type = "error"
)

// Event is one message in a thread's delivery stream. Events for a given
// thread are delivered in the exact order stages executed; no reordering
// or skipping.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	ThreadID  string    `json:"threadId"`
	Timestamp time.Time `json:"timestamp"`

	// Step fields.
	Step    int    `json:"stepCount,omitempty"`
	Stage   string `json:"representative,omitempty"`
	Content string `json:"content,omitempty"`

	// Completed fields.
	TotalSteps int `json:"totalSteps,omitempty"`

	// Interrupted fields.
	PendingStage string `json:"pendingStage,omitempty"`
	Reason       string `json:"reason,omitempty"`

	// Error fields.
	Details string `json:"details,omitempty"`
}

// NewStep creates a step event.
func NewStep(threadID string, step int, stage, content string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      TypeStep,
		ThreadID:  threadID,
		Timestamp: time.Now().UTC(),
		Step:      step,
		Stage:     stage,
		Content:   content,
	}
}

// NewCompleted creates the terminal event of a successful run.
func NewCompleted(threadID string, totalSteps int) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       TypeCompleted,
		ThreadID:   threadID,
		Timestamp:  time.Now().UTC(),
		TotalSteps: totalSteps,
	}
}

// NewInterrupted creates the terminal event of a paused run.
func NewInterrupted(threadID, pendingStage, reason string) Event {
	return Event{
		ID:           uuid.New().String(),
		Type:         TypeInterrupted,
		ThreadID:     threadID,
		Timestamp:    time.Now().UTC(),
		PendingStage: pendingStage,
		Reason:       reason,
	}
}

// NewError creates the terminal event of a failed run. content is a short
// user-facing message; details is diagnostic-only.
func NewError(threadID, content, details string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      TypeError,
		ThreadID:  threadID,
		Timestamp: time.Now().UTC(),
		Content:   content,
		Details:   details,
	}
}

// Marshal serializes the event for the wire.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Terminal reports whether the event closes its thread's stream.
func (e Event) Terminal() bool {
	return e.Type == TypeCompleted || e.Type == TypeInterrupted || e.Type == TypeError
}
