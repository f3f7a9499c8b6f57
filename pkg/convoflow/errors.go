package convoflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for workflow definition and compilation.
var (
	// ErrNoEntryStage indicates SetEntry() was not called before Compile().
	ErrNoEntryStage = errors.New("entry stage not set")

	// ErrEntryNotFound indicates the entry point references a non-existent stage.
	ErrEntryNotFound = errors.New("entry stage not found")

	// ErrStageNotFound indicates an edge or route references a non-existent stage.
	ErrStageNotFound = errors.New("stage not found")

	// ErrNoPathToEnd indicates no path exists from the entry stage to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")

	// ErrEmptyRouteTable indicates a conditional edge was added with no routes.
	ErrEmptyRouteTable = errors.New("route table is empty")
)

// Sentinel errors for execution.
var (
	// ErrMaxTurns indicates the execution loop exceeded the configured limit.
	ErrMaxTurns = errors.New("exceeded maximum turns")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrUnmappedRouteKey indicates a router returned a key absent from the
	// route table.
	ErrUnmappedRouteKey = errors.New("route key not in route table")

	// ErrEmptyRouteKey indicates a router returned an empty string.
	ErrEmptyRouteKey = errors.New("router returned empty key")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrThreadRequired indicates checkpointing was enabled without a thread ID.
	ErrThreadRequired = errors.New("thread ID required for checkpointing")

	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrNoCheckpoints indicates no checkpoints exist for the thread.
	ErrNoCheckpoints = errors.New("no checkpoints found for thread")

	// ErrThreadCompleted indicates Resume was called on a thread whose latest
	// checkpoint is already terminal.
	ErrThreadCompleted = errors.New("thread already completed")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// DefinitionError aggregates all validation failures found during Compile().
// The individual failures are joined and reachable via errors.Is/As.
type DefinitionError struct {
	// Errs is the joined set of validation failures.
	Errs error
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid workflow definition: %v", e.Errs)
}

// Unwrap returns the joined validation errors.
func (e *DefinitionError) Unwrap() error {
	return e.Errs
}

// StageError wraps an error with stage context.
type StageError struct {
	// StageID is the identifier of the stage that failed.
	StageID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Err is the underlying error from the stage.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.StageID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from stage execution.
type PanicError struct {
	// StageID is the identifier of the stage that panicked.
	StageID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %s panicked: %v", e.StageID, e.Value)
}

// CancellationError captures the state when execution was cancelled.
type CancellationError struct {
	// StageID is the stage that was about to execute or was executing.
	StageID string
	// State is the state at cancellation (type-assert to the actual type).
	State any
	// Cause is the underlying cancellation cause.
	Cause error
	// WasExecuting is true if cancellation occurred during stage execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during stage %s: %v", e.StageID, e.Cause)
	}
	return fmt.Sprintf("cancelled before stage %s: %v", e.StageID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouteError reports a routing failure at a conditional edge.
type RouteError struct {
	// FromStage is the stage whose router failed.
	FromStage string
	// Key is the route key the router returned.
	Key string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouteError) Error() string {
	return fmt.Sprintf("route from %s with key %q: %v", e.FromStage, e.Key, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouteError) Unwrap() error {
	return e.Err
}

// MaxTurnsError provides context when the turn limit is exceeded.
type MaxTurnsError struct {
	// Max is the configured turn limit.
	Max int
	// LastStageID is the stage that would have executed next.
	LastStageID string
	// State is the state at termination (type-assert to the actual type).
	State any
}

// Error implements the error interface.
func (e *MaxTurnsError) Error() string {
	return fmt.Sprintf("exceeded maximum turns (%d) at stage %s", e.Max, e.LastStageID)
}

// Unwrap returns ErrMaxTurns for errors.Is support.
func (e *MaxTurnsError) Unwrap() error {
	return ErrMaxTurns
}

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// StageID is the stage where checkpointing failed.
	StageID string
	// Op is the operation that failed ("save", "load", "serialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at stage %s: %v", e.Op, e.StageID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// ForkJoinError reports a failed parallel section.
type ForkJoinError struct {
	// ForkStageID is the stage where execution forked.
	ForkStageID string
	// BranchID is the branch that failed first.
	BranchID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ForkJoinError) Error() string {
	return fmt.Sprintf("fork/join at %s (branch %s): %v", e.ForkStageID, e.BranchID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ForkJoinError) Unwrap() error {
	return e.Err
}

// InterruptError signals that a stage requires external authorization before
// it can proceed. It is not a failure: the engine pauses the run, persists an
// interrupted checkpoint pending on the same stage, and reports
// StatusInterrupted. The stage runs again from the top on Resume.
type InterruptError struct {
	// Flag names the authorization being requested (e.g. "refund_authorization").
	Flag string
	// Reason is a human-readable explanation for the reviewer.
	Reason string
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("interrupted on %s: %s", e.Flag, e.Reason)
}

// Interrupt returns an InterruptError for a stage to signal a pause.
//
// Example:
//
//	if refund > limit && !state.RefundApproved {
//	    return delta, convoflow.Interrupt("refund_authorization",
//	        fmt.Sprintf("refund of %d cents exceeds limit", refund))
//	}
func Interrupt(flag, reason string) error {
	return &InterruptError{Flag: flag, Reason: reason}
}

// IsInterrupt reports whether err is (or wraps) an InterruptError.
func IsInterrupt(err error) bool {
	var ie *InterruptError
	return errors.As(err, &ie)
}
