package convoflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/event"
	"github.com/convoflow/convoflow/pkg/convoflow/llm"
	"github.com/convoflow/convoflow/pkg/convoflow/observability"
	"github.com/convoflow/convoflow/pkg/convoflow/state"
)

// Status is the outcome of a run.
type Status string

// Run outcomes.
const (
	// StatusCompleted means the run reached END.
	StatusCompleted Status = "completed"
	// StatusInterrupted means a stage paused the run for authorization.
	// The run is resumable; this is not a failure.
	StatusInterrupted Status = "interrupted"
	// StatusFailed means a stage, router, or checkpoint operation failed.
	StatusFailed Status = "failed"
)

// RunResult is the outcome of Run, Stream, or Resume.
type RunResult[S any] struct {
	// Status is the run outcome. The accompanying error is non-nil only
	// when Status is StatusFailed; an interrupted run is a success with
	// work pending.
	Status Status

	// State is the conversation state at the end of the run. For an
	// interrupted run it excludes the interrupting stage's delta.
	State S

	// Steps is the number of stages that completed during this run.
	Steps int

	// LastStage is the last stage that completed, or for a failed run the
	// stage where execution stopped.
	LastStage string

	// PendingStage is the stage that will run next on Resume.
	// Set only for interrupted runs.
	PendingStage string

	// InterruptFlag and InterruptReason describe the authorization an
	// interrupted run is waiting for.
	InterruptFlag   string
	InterruptReason string
}

// Replier is an optional interface for state types. When implemented, the
// engine uses LastReply to fill the content of streamed step events.
type Replier interface {
	LastReply() string
}

// Run executes the workflow from its entry stage with the given initial
// state. The returned error is non-nil only when the result status is
// StatusFailed; interrupts are reported through the result.
//
// With WithThread, every completed stage persists a checkpoint before the
// run advances, and concurrent runs on the same thread are serialized.
//
// Example:
//
//	ctx := convoflow.NewContext(context.Background(), convoflow.WithModel(client))
//	res, err := wf.Run(ctx, initial, convoflow.WithThread(store, "thread-1"))
//	if err != nil {
//	    // res.State holds the state at the point of failure
//	}
//	if res.Status == convoflow.StatusInterrupted {
//	    // waiting on res.InterruptFlag
//	}
func (w *Workflow[S]) Run(ctx Context, initial S, opts ...RunOption) (RunResult[S], error) {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return w.run(ctx, initial, w.entryStage, &cfg)
}

// Stream executes the workflow like Run, delivering a step event after each
// stage plus one terminal event, in order, on the returned channel. The
// channel is closed when the run finishes. The run's result is delivered on
// the second channel, which receives exactly one value.
func (w *Workflow[S]) Stream(ctx Context, initial S, opts ...RunOption) (<-chan event.Event, <-chan RunResult[S]) {
	events := make(chan event.Event, 16)
	done := make(chan RunResult[S], 1)

	opts = append(opts, withStepHook(func(ev event.Event) {
		events <- ev
	}))

	go func() {
		defer close(events)
		res, _ := w.Run(ctx, initial, opts...)
		done <- res
	}()

	return events, done
}

// run is the shared entry for Run and Resume: it acquires the thread lock,
// wraps execution with run-level observability, and records the outcome.
func (w *Workflow[S]) run(ctx Context, initial S, startStage string, cfg *runConfig) (res RunResult[S], runErr error) {
	if ctx == nil {
		return RunResult[S]{Status: StatusFailed, State: initial}, ErrNilContext
	}

	ec, ok := ctx.(*executionContext)
	if !ok {
		ec = NewContext(ctx).(*executionContext)
	}

	if cfg.store != nil {
		if cfg.threadID == "" {
			return RunResult[S]{Status: StatusFailed, State: initial}, ErrThreadRequired
		}
		ec = ec.withThread(cfg.threadID)

		if !cfg.lockHeld {
			lock := w.threadLock(cfg.threadID)
			lock.Lock()
			defer lock.Unlock()
		}

		// Continue sequence numbering after any existing history so a new
		// run appends to the thread instead of overwriting it.
		if cfg.sequence == 0 {
			if data, err := cfg.store.LoadLatest(cfg.threadID); err == nil {
				if cp, err := checkpoint.Unmarshal(data); err == nil {
					cfg.sequence = cp.Sequence
				}
			}
		}
	}

	start := time.Now()
	observability.LogRunStart(ec.Logger(), cfg.threadID, startStage)

	execCtx := ec
	var runSpan trace.Span
	if cfg.tracingEnabled {
		inner, span := cfg.spans.StartRunSpan(ec.Context, cfg.workflowName, cfg.threadID)
		execCtx = ec.withInner(inner)
		runSpan = span
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	res, runErr = w.runFrom(execCtx, initial, startStage, cfg)

	durationMs := float64(time.Since(start).Milliseconds())
	cfg.metrics.RecordRun(ec, cfg.workflowName, string(res.Status), durationMs, res.Steps)

	switch res.Status {
	case StatusCompleted:
		observability.LogRunComplete(ec.Logger(), cfg.threadID, durationMs, res.Steps)
	case StatusInterrupted:
		cfg.metrics.RecordInterrupt(ec, cfg.workflowName, res.InterruptFlag)
		observability.LogRunInterrupted(ec.Logger(), cfg.threadID, res.PendingStage, res.InterruptReason)
	case StatusFailed:
		observability.LogRunError(ec.Logger(), cfg.threadID, runErr, durationMs, res.LastStage)
	}

	return res, runErr
}

// runFrom executes the stage loop from startStage until END, an interrupt,
// or an error. Per stage the order is fixed: execute, merge the delta,
// route, persist the checkpoint, emit the step event, advance. A routing
// failure aborts before the checkpoint write, so the previous checkpoint
// stays the thread's last durable word.
func (w *Workflow[S]) runFrom(ec *executionContext, st S, startStage string, cfg *runConfig) (RunResult[S], error) {
	current := startStage
	turns := 0
	steps := 0
	lastStage := ""
	eventThread := cfg.threadID
	if eventThread == "" {
		eventThread = ec.RunID()
	}

	fail := func(err error) (RunResult[S], error) {
		cfg.emit(event.NewError(eventThread, "run failed at "+current, err.Error()))
		return RunResult[S]{
			Status:    StatusFailed,
			State:     st,
			Steps:     steps,
			LastStage: current,
		}, err
	}

	for current != END {
		turns++
		if turns > cfg.maxTurns {
			return fail(&MaxTurnsError{Max: cfg.maxTurns, LastStageID: current, State: st})
		}

		select {
		case <-ec.Done():
			return fail(&CancellationError{StageID: current, State: st, Cause: ec.Err()})
		default:
		}

		observability.LogStageStart(ec.Logger(), current)
		stageStart := time.Now()

		delta, stageErr := w.executeStage(ec, cfg, current, st)

		stageMs := float64(time.Since(stageStart).Milliseconds())
		cfg.metrics.RecordStage(ec, cfg.workflowName, current, stageMs, stageErr == nil)

		if stageErr != nil {
			var ie *InterruptError
			if errors.As(stageErr, &ie) {
				// The interrupting stage's delta is discarded; the stage
				// re-runs from the top on resume.
				if cfg.store != nil {
					if err := w.saveCheckpoint(ec, cfg, current, st, current, checkpoint.StatusInterrupted, ie.Reason); err != nil {
						return fail(err)
					}
				}
				cfg.emit(event.NewInterrupted(eventThread, current, ie.Reason))
				return RunResult[S]{
					Status:          StatusInterrupted,
					State:           st,
					Steps:           steps,
					LastStage:       lastStage,
					PendingStage:    current,
					InterruptFlag:   ie.Flag,
					InterruptReason: ie.Reason,
				}, nil
			}
			observability.LogStageError(ec.Logger(), current, stageErr)
			return fail(stageErr)
		}

		observability.LogStageComplete(ec.Logger(), current, stageMs)
		st = state.Merge(w.schema, st, delta)
		steps++

		if fork := w.getFork(current); fork != nil {
			merged, branchSteps, err := w.executeForkJoin(ec, fork, st, cfg)
			if err != nil {
				// A best-effort section has already merged the surviving
				// branch deltas into merged.
				st = merged
				return fail(err)
			}
			st = merged
			steps += branchSteps

			next := fork.JoinStageID
			if next == "" {
				next = END
			}
			if cfg.store != nil {
				if err := w.saveCheckpoint(ec, cfg, current, st, next, statusFor(next), ""); err != nil {
					return fail(err)
				}
			}
			cfg.emit(event.NewStep(eventThread, steps, current, replyOf(st)))
			lastStage = current
			current = next
			continue
		}

		next, routeErr := w.nextStage(ec, st, current)
		if routeErr != nil {
			return fail(routeErr)
		}

		if cfg.store != nil {
			if err := w.saveCheckpoint(ec, cfg, current, st, next, statusFor(next), ""); err != nil {
				return fail(err)
			}
		}

		cfg.emit(event.NewStep(eventThread, steps, current, replyOf(st)))
		lastStage = current
		current = next
	}

	cfg.emit(event.NewCompleted(eventThread, steps))
	return RunResult[S]{
		Status:    StatusCompleted,
		State:     st,
		Steps:     steps,
		LastStage: lastStage,
	}, nil
}

// executeStage runs one stage with panic recovery, optional per-stage
// timeout, and retry on retryable model errors. Interrupts pass through
// unwrapped and are never retried.
func (w *Workflow[S]) executeStage(ec *executionContext, cfg *runConfig, stageID string, st S) (S, error) {
	fn, exists := w.getStage(stageID)
	if !exists {
		return st, &StageError{
			StageID: stageID,
			Op:      "lookup",
			Err:     fmt.Errorf("stage not found: %s", stageID),
		}
	}

	maxAttempts := 1 + cfg.stageRetries
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		stageCtx := ec.withStage(stageID, attempt)

		var stageSpan trace.Span
		if cfg.tracingEnabled {
			inner, span := cfg.spans.StartStageSpan(stageCtx.Context, stageID, attempt)
			stageCtx = stageCtx.withInner(inner)
			stageSpan = span
		}

		var cancel context.CancelFunc
		if cfg.stageTimeout > 0 {
			var inner context.Context
			inner, cancel = context.WithTimeout(stageCtx.Context, cfg.stageTimeout)
			stageCtx = stageCtx.withInner(inner)
		}

		delta, err := callStage(stageCtx, fn, st, stageID)
		if cancel != nil {
			cancel()
		}
		if stageSpan != nil {
			cfg.spans.EndSpanWithError(stageSpan, err)
		}

		if err == nil {
			return delta, nil
		}
		if IsInterrupt(err) {
			return delta, err
		}

		lastErr = &StageError{StageID: stageID, Op: "execute", Err: err}

		if attempt < maxAttempts && llm.IsRetryable(err) {
			continue
		}
		break
	}

	return st, lastErr
}

// callStage invokes the stage function with panic recovery.
func callStage[S any](ctx Context, fn StageFunc[S], st S, stageID string) (delta S, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero S
			delta = zero
			err = &PanicError{
				StageID: stageID,
				Value:   r,
				Stack:   string(debug.Stack()),
			}
		}
	}()

	return fn(ctx, st)
}

// nextStage determines the next stage after current completes.
// A route table, when present, takes precedence over simple edges.
func (w *Workflow[S]) nextStage(ec *executionContext, st S, current string) (string, error) {
	if router, exists := w.getRouter(current); exists {
		key := router(ec.withStage(current, 1), st)

		if key == "" {
			return "", &RouteError{FromStage: current, Key: key, Err: ErrEmptyRouteKey}
		}

		target, mapped := w.routes[current][key]
		if !mapped {
			return "", &RouteError{FromStage: current, Key: key, Err: ErrUnmappedRouteKey}
		}
		return target, nil
	}

	edges := w.edges[current]
	if len(edges) == 0 {
		return "", &StageError{
			StageID: current,
			Op:      "routing",
			Err:     fmt.Errorf("no outgoing edge from stage %s", current),
		}
	}

	// Forks are handled before routing; a single edge is followed directly.
	return edges[0], nil
}

// saveCheckpoint serializes state and persists a checkpoint. Checkpoint
// failures are fatal: advancing without a durable snapshot would make
// resume lie about history.
func (w *Workflow[S]) saveCheckpoint(ec *executionContext, cfg *runConfig, stageID string, st S, pending string, status checkpoint.Status, reason string) error {
	stateBytes, err := json.Marshal(st)
	if err != nil {
		return &CheckpointError{StageID: stageID, Op: "serialize", Err: fmt.Errorf("%w: %v", ErrSerializeState, err)}
	}

	cfg.sequence++
	cp := checkpoint.New(cfg.threadID, stageID, cfg.sequence, stateBytes, pending, status)
	if reason != "" {
		cp = cp.WithInterruptReason(reason)
	}

	data, err := cp.Marshal()
	if err != nil {
		return &CheckpointError{StageID: stageID, Op: "marshal", Err: err}
	}

	if err := cfg.store.Save(cfg.threadID, cfg.sequence, data); err != nil {
		observability.LogCheckpointError(ec.Logger(), cfg.threadID, "save", err)
		return &CheckpointError{StageID: stageID, Op: "save", Err: err}
	}

	observability.LogCheckpoint(ec.Logger(), cfg.threadID, cfg.sequence, len(data))
	cfg.metrics.RecordCheckpoint(ec, cfg.workflowName, len(data))

	return nil
}

// statusFor returns the checkpoint status for an advance to next.
func statusFor(next string) checkpoint.Status {
	if next == END {
		return checkpoint.StatusCompleted
	}
	return checkpoint.StatusRunning
}

// replyOf extracts streamed step content from state types implementing
// Replier.
func replyOf(st any) string {
	if r, ok := st.(Replier); ok {
		return r.LastReply()
	}
	return ""
}
