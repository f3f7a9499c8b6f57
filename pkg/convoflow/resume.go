package convoflow

import (
	"encoding/json"
	"fmt"

	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/state"
)

// resumeConfig holds configuration applied to the loaded state before
// execution restarts.
type resumeConfig struct {
	hasUpdate  bool
	updateJSON []byte
	validate   func(any) error
	runOptions []RunOption
}

// ResumeOption configures Resume.
type ResumeOption func(*resumeConfig)

// WithResumeUpdate merges a delta into the restored state before the
// pending stage re-runs. This is how an authorization decision or a new
// user message reaches an interrupted thread: set the approval field or
// append the message in the delta, then the retried stage sees it.
func WithResumeUpdate[S any](delta S) ResumeOption {
	data, err := json.Marshal(delta)
	if err != nil {
		panic(fmt.Sprintf("convoflow: resume update not serializable: %v", err))
	}
	return func(c *resumeConfig) {
		c.hasUpdate = true
		c.updateJSON = data
	}
}

// WithResumeValidation runs a check against the restored state before
// execution restarts. The argument can be type-asserted to the state type.
func WithResumeValidation(fn func(restored any) error) ResumeOption {
	return func(c *resumeConfig) {
		c.validate = fn
	}
}

// WithRunOptions forwards run options (event bus, metrics, stage retry) to
// the resumed execution. WithThread is implied and must not be repeated.
func WithRunOptions(opts ...RunOption) ResumeOption {
	return func(c *resumeConfig) {
		c.runOptions = append(c.runOptions, opts...)
	}
}

// Resume continues a thread from its latest checkpoint.
//
// For an interrupted thread the pending stage is the interrupting stage
// itself: it re-runs from the top against the restored state (plus any
// resume update), so a stage that still lacks its authorization simply
// interrupts again. Returns ErrNoCheckpoints for an unknown thread and
// ErrThreadCompleted when the latest checkpoint is terminal.
//
// Example:
//
//	res, err := wf.Resume(ctx, store, "thread-1",
//	    convoflow.WithResumeUpdate(SupportState{RefundApproved: true}))
func (w *Workflow[S]) Resume(ctx Context, store checkpoint.Store, threadID string, opts ...ResumeOption) (RunResult[S], error) {
	var zero S

	if ctx == nil {
		return RunResult[S]{Status: StatusFailed}, ErrNilContext
	}
	if threadID == "" {
		return RunResult[S]{Status: StatusFailed}, ErrThreadRequired
	}

	rcfg := resumeConfig{}
	for _, opt := range opts {
		opt(&rcfg)
	}

	// The checkpoint is loaded and status-checked under the thread lock.
	// Two concurrent resumes of an interrupted thread serialize here: the
	// second reloads after the first finished and sees the terminal
	// checkpoint instead of replaying the interrupted stage.
	lock := w.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	data, err := store.LoadLatest(threadID)
	if err != nil {
		if err == checkpoint.ErrNotFound {
			return RunResult[S]{Status: StatusFailed}, fmt.Errorf("%w: %s", ErrNoCheckpoints, threadID)
		}
		return RunResult[S]{Status: StatusFailed}, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return RunResult[S]{Status: StatusFailed}, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if cp.Version != checkpoint.Version {
		return RunResult[S]{Status: StatusFailed}, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	if cp.Status == checkpoint.StatusCompleted || cp.PendingStage == END {
		return RunResult[S]{Status: StatusFailed}, fmt.Errorf("%w: %s", ErrThreadCompleted, threadID)
	}

	restored := zero
	if err := json.Unmarshal(cp.State, &restored); err != nil {
		return RunResult[S]{Status: StatusFailed}, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if rcfg.hasUpdate {
		var delta S
		if err := json.Unmarshal(rcfg.updateJSON, &delta); err != nil {
			return RunResult[S]{Status: StatusFailed}, fmt.Errorf("%w: resume update: %v", ErrDeserializeState, err)
		}
		restored = state.Merge(w.schema, restored, delta)
	}

	if rcfg.validate != nil {
		if err := rcfg.validate(restored); err != nil {
			return RunResult[S]{Status: StatusFailed, State: restored},
				fmt.Errorf("resume validation failed: %w", err)
		}
	}

	startStage := cp.PendingStage
	if !w.HasStage(startStage) {
		return RunResult[S]{Status: StatusFailed},
			fmt.Errorf("%w: checkpoint pends on '%s'", ErrStageNotFound, startStage)
	}

	cfg := defaultRunConfig()
	for _, opt := range rcfg.runOptions {
		opt(&cfg)
	}
	cfg.store = store
	cfg.threadID = threadID
	cfg.sequence = cp.Sequence
	cfg.lockHeld = true

	return w.run(ctx, restored, startStage, &cfg)
}
