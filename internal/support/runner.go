package support

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/convoflow/convoflow/pkg/convoflow"
	"github.com/convoflow/convoflow/pkg/convoflow/approval"
	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/event"
	"github.com/convoflow/convoflow/pkg/convoflow/llm"
	"github.com/convoflow/convoflow/pkg/convoflow/observability"
)

// Runner binds the support workflow to its infrastructure: checkpoint
// store, event bus, model client, and the approval inbox. It is the unit
// the HTTP layer talks to.
type Runner struct {
	wf        *convoflow.Workflow[State]
	store     checkpoint.Store
	client    llm.Client
	bus       event.Bus
	approvals *approval.Inbox
	logger    *slog.Logger
	metrics   observability.MetricsRecorder

	stageRetry   int
	stageTimeout time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder passed to every run.
func WithMetrics(m observability.MetricsRecorder) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithStageRetry sets the per-stage retry count for retryable model errors.
func WithStageRetry(n int) RunnerOption {
	return func(r *Runner) { r.stageRetry = n }
}

// WithStageTimeout bounds each stage's model call.
func WithStageTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.stageTimeout = d }
}

// NewRunner builds the support workflow runner.
func NewRunner(store checkpoint.Store, client llm.Client, bus event.Bus, approvals *approval.Inbox, opts ...RunnerOption) (*Runner, error) {
	wf, err := NewWorkflow()
	if err != nil {
		return nil, fmt.Errorf("build support workflow: %w", err)
	}

	r := &Runner{
		wf:        wf,
		store:     store,
		client:    client,
		bus:       bus,
		approvals: approvals,
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name identifies the workflow for registry lookup.
func (r *Runner) Name() string { return "support" }

// baseOptions builds the option set shared by Start and Resume.
// Resume supplies the thread binding itself, so WithThread is not here.
func (r *Runner) baseOptions() []convoflow.RunOption {
	opts := []convoflow.RunOption{
		convoflow.WithWorkflowName(r.Name()),
		convoflow.WithMetrics(r.metrics),
	}
	if r.bus != nil {
		opts = append(opts, convoflow.WithEventBus(r.bus))
	}
	if r.stageRetry > 0 {
		opts = append(opts, convoflow.WithStageRetry(r.stageRetry))
	}
	if r.stageTimeout > 0 {
		opts = append(opts, convoflow.WithStageTimeout(r.stageTimeout))
	}
	return opts
}

// Start runs a new conversation on the thread. Step events stream to the
// bus as stages complete. An interrupt records a pending approval and
// returns nil; only a failed run returns an error.
func (r *Runner) Start(ctx context.Context, threadID, message string) error {
	ec := convoflow.NewContext(ctx,
		convoflow.WithModel(r.client),
		convoflow.WithLogger(r.logger))

	opts := append([]convoflow.RunOption{convoflow.WithThread(r.store, threadID)}, r.baseOptions()...)
	res, err := r.wf.Run(ec, Initial(message), opts...)
	if err != nil {
		return err
	}

	if res.Status == convoflow.StatusInterrupted {
		r.approvals.Open(threadID, res.InterruptFlag, res.InterruptReason)
	}
	return nil
}

// Resume restarts an interrupted thread with the human decision recorded
// in state. An optional message is appended as a user turn before the
// pending stage re-runs. The thread may interrupt again; that reopens a
// pending approval.
func (r *Runner) Resume(ctx context.Context, threadID string, authorized bool, message string) error {
	if _, err := r.approvals.Resolve(threadID, authorized); err != nil {
		return fmt.Errorf("resolve approval for %s: %w", threadID, err)
	}

	delta := State{
		RefundAuthorized: authorized,
		RefundDenied:     !authorized,
	}
	if message != "" {
		delta.Messages = []llm.Message{llm.User(message)}
	}

	ec := convoflow.NewContext(ctx,
		convoflow.WithModel(r.client),
		convoflow.WithLogger(r.logger))

	res, err := r.wf.Resume(ec, r.store, threadID,
		convoflow.WithResumeUpdate(delta),
		convoflow.WithRunOptions(r.baseOptions()...))
	if err != nil {
		return err
	}

	if res.Status == convoflow.StatusInterrupted {
		r.approvals.Open(threadID, res.InterruptFlag, res.InterruptReason)
	}
	return nil
}

// Thread returns the latest checkpoint for a thread.
func (r *Runner) Thread(threadID string) (*checkpoint.Checkpoint, error) {
	data, err := r.store.LoadLatest(threadID)
	if err != nil {
		return nil, err
	}
	return checkpoint.Unmarshal(data)
}
