package convoflow

import (
	"time"

	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/event"
	"github.com/convoflow/convoflow/pkg/convoflow/observability"
)

// runConfig holds configuration for workflow execution.
type runConfig struct {
	maxTurns     int
	workflowName string

	store    checkpoint.Store
	threadID string
	sequence int

	// lockHeld marks that the caller already holds the thread lock
	// (Resume locks before loading the checkpoint).
	lockHeld bool

	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool

	bus  event.Bus
	hook func(event.Event)

	stageTimeout time.Duration
	stageRetries int
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxTurns:     50,
		workflowName: "workflow",
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
	}
}

// emit delivers a step event to the configured bus and hook.
func (c *runConfig) emit(ev event.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
	if c.hook != nil {
		c.hook(ev)
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithThread enables checkpointing: every completed stage writes a
// checkpoint to store keyed by threadID, and runs on the same thread are
// serialized. Required for Resume.
func WithThread(store checkpoint.Store, threadID string) RunOption {
	return func(c *runConfig) {
		c.store = store
		c.threadID = threadID
	}
}

// WithMaxTurns sets the maximum number of stage executions per run.
// Default: 50. Exceeding the limit fails the run with a MaxTurnsError.
func WithMaxTurns(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxTurns = n
		}
	}
}

// WithWorkflowName labels metrics, spans, and logs for this run.
func WithWorkflowName(name string) RunOption {
	return func(c *runConfig) {
		if name != "" {
			c.workflowName = name
		}
	}
}

// WithMetrics enables metric recording for this run.
func WithMetrics(recorder observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithTracing enables span creation around the run and each stage.
func WithTracing(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracingEnabled = true
		}
	}
}

// WithEventBus publishes a step event after every stage plus a terminal
// event when the run finishes.
func WithEventBus(bus event.Bus) RunOption {
	return func(c *runConfig) {
		c.bus = bus
	}
}

// WithStageTimeout bounds each individual stage execution.
// 0 (the default) means no per-stage deadline.
func WithStageTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.stageTimeout = d
	}
}

// WithStageRetry re-runs a stage up to n extra times when it fails with a
// retryable model error. Interrupts are never retried.
func WithStageRetry(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.stageRetries = n
		}
	}
}

// withStepHook registers an in-process callback per emitted event.
// Used by Stream.
func withStepHook(hook func(event.Event)) RunOption {
	return func(c *runConfig) {
		c.hook = hook
	}
}
