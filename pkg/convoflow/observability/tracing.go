package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager creates and finishes spans around runs and stages.
type SpanManager interface {
	StartRunSpan(ctx context.Context, workflow, threadID string) (context.Context, trace.Span)
	StartStageSpan(ctx context.Context, stageID string, attempt int) (context.Context, trace.Span)
	EndSpanWithError(span trace.Span, err error)
	AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager creates a SpanManager backed by the global tracer provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{
		tracer: otel.Tracer("github.com/convoflow/convoflow"),
	}
}

func (s *otelSpanManager) StartRunSpan(ctx context.Context, workflow, threadID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "convoflow.run",
		trace.WithAttributes(
			attribute.String("workflow", workflow),
			attribute.String("thread_id", threadID),
		),
	)
}

func (s *otelSpanManager) StartStageSpan(ctx context.Context, stageID string, attempt int) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "convoflow.stage."+stageID,
		trace.WithAttributes(
			attribute.String("stage", stageID),
			attribute.Int("attempt", attempt),
		),
	)
}

func (s *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *otelSpanManager) AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
