package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordRun(context.Context, string, string, float64, int)    {}
func (NoopMetrics) RecordStage(context.Context, string, string, float64, bool) {}
func (NoopMetrics) RecordCheckpoint(context.Context, string, int)              {}
func (NoopMetrics) RecordInterrupt(context.Context, string, string)            {}

// NoopSpanManager produces no-op spans.
type NoopSpanManager struct{}

func (NoopSpanManager) StartRunSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) StartStageSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

func (NoopSpanManager) AddSpanEvent(trace.Span, string, ...attribute.KeyValue) {}
