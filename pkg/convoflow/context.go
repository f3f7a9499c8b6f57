package convoflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/convoflow/convoflow/pkg/convoflow/llm"
)

// Context provides execution context to stages.
// It extends context.Context with conversation-specific services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// for each stage with updated StageID and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with thread and stage
	// context. Never returns nil; defaults to slog.Default().
	Logger() *slog.Logger

	// Model returns the model client, or nil if not configured.
	// Stages should check for nil before using.
	Model() llm.Client

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// ThreadID returns the conversation thread this run belongs to.
	// Empty if the run is not checkpointed.
	ThreadID() string

	// StageID returns the stage currently executing.
	// Empty before execution starts.
	StageID() string

	// Attempt returns the retry attempt number (1 = first attempt).
	Attempt() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger   *slog.Logger
	model    llm.Client
	runID    string
	threadID string
	stageID  string
	attempt  int
}

func (c *executionContext) Logger() *slog.Logger { return c.logger }
func (c *executionContext) Model() llm.Client    { return c.model }
func (c *executionContext) RunID() string        { return c.runID }
func (c *executionContext) ThreadID() string     { return c.threadID }
func (c *executionContext) StageID() string      { return c.stageID }
func (c *executionContext) Attempt() int         { return c.attempt }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The executor enriches it with thread_id, stage, and attempt per stage.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithModel sets the model client available to stages via ctx.Model().
func WithModel(client llm.Client) ContextOption {
	return func(c *executionContext) {
		c.model = client
	}
}

// WithRunID sets the run identifier. If not set, a UUID is generated.
func WithRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := convoflow.NewContext(context.Background(),
//	    convoflow.WithLogger(logger),
//	    convoflow.WithModel(client))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
		attempt: 1,
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withStage returns a derived context scoped to one stage execution.
func (c *executionContext) withStage(stageID string, attempt int) *executionContext {
	return &executionContext{
		Context: c.Context,
		logger: c.logger.With(
			"thread_id", c.threadID,
			"stage", stageID,
			"attempt", attempt,
		),
		model:    c.model,
		runID:    c.runID,
		threadID: c.threadID,
		stageID:  stageID,
		attempt:  attempt,
	}
}

// withThread returns a derived context carrying the thread identifier.
func (c *executionContext) withThread(threadID string) *executionContext {
	derived := *c
	derived.threadID = threadID
	return &derived
}

// withInner swaps the embedded context.Context, preserving services.
// Used to thread per-stage timeouts and span contexts through execution.
func (c *executionContext) withInner(inner context.Context) *executionContext {
	derived := *c
	derived.Context = inner
	return &derived
}
