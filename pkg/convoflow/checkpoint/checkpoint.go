package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to the checkpoint structure.
const Version = 1

// Status is the run status recorded with a checkpoint.
type Status string

// Checkpoint statuses.
const (
	// StatusRunning means the thread has more stages pending.
	StatusRunning Status = "running"
	// StatusInterrupted means the pending stage is waiting for external
	// authorization and will be retried on resume.
	StatusInterrupted Status = "interrupted"
	// StatusCompleted means the thread reached the terminal marker.
	StatusCompleted Status = "completed"
)

// Checkpoint is the persisted snapshot of a thread: the serialized
// conversation state plus the stage to run next on resume.
type Checkpoint struct {
	Version   int       `json:"version"`
	ThreadID  string    `json:"thread_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// StageID is the stage whose result this checkpoint captures.
	// For interrupted checkpoints it is the stage that raised the
	// interrupt (its effects are NOT in State).
	StageID string `json:"stage_id"`

	// PendingStage is where execution re-enters on resume. For interrupted
	// checkpoints this equals StageID: the interrupted stage is retried,
	// not skipped.
	PendingStage string `json:"pending_stage"`

	Status Status          `json:"status"`
	State  json.RawMessage `json:"state"`

	// Attempt counts retries of the pending stage.
	Attempt int `json:"attempt"`

	// InterruptReason describes why the thread paused, when interrupted.
	InterruptReason string `json:"interrupt_reason,omitempty"`
}

// New creates a checkpoint. State must already be JSON-serialized.
func New(threadID, stageID string, sequence int, state []byte, pending string, status Status) *Checkpoint {
	return &Checkpoint{
		Version:      Version,
		ThreadID:     threadID,
		Sequence:     sequence,
		Timestamp:    time.Now().UTC(),
		StageID:      stageID,
		PendingStage: pending,
		Status:       status,
		State:        state,
		Attempt:      1,
	}
}

// WithAttempt sets the attempt number for retry tracking.
func (c *Checkpoint) WithAttempt(attempt int) *Checkpoint {
	c.Attempt = attempt
	return c
}

// WithInterruptReason records why the thread paused.
func (c *Checkpoint) WithInterruptReason(reason string) *Checkpoint {
	c.InterruptReason = reason
	return c
}

// Marshal serializes the checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
