package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records conversation engine metrics. Implementations must
// be safe for concurrent use.
type MetricsRecorder interface {
	// RecordRun records a finished run with its outcome and total step count.
	// Outcome is one of "completed", "interrupted", or "failed".
	RecordRun(ctx context.Context, workflow, outcome string, durationMs float64, steps int)

	// RecordStage records a single stage execution.
	RecordStage(ctx context.Context, workflow, stage string, durationMs float64, success bool)

	// RecordCheckpoint records a checkpoint write and its serialized size.
	RecordCheckpoint(ctx context.Context, workflow string, sizeBytes int)

	// RecordInterrupt records a run pausing on the named flag.
	RecordInterrupt(ctx context.Context, workflow, flag string)
}

type otelMetrics struct {
	runs           metric.Int64Counter
	runDuration    metric.Float64Histogram
	runSteps       metric.Int64Histogram
	stageDuration  metric.Float64Histogram
	stageErrors    metric.Int64Counter
	checkpointSize metric.Int64Histogram
	interrupts     metric.Int64Counter
}

var (
	defaultMetrics     MetricsRecorder
	defaultMetricsOnce sync.Once
)

// NewMetricsRecorder creates an OTel-backed recorder using the global meter
// provider. Falls back to a no-op recorder if instrument creation fails.
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics()
	if err != nil {
		return NoopMetrics{}
	}
	return m
}

// DefaultMetrics returns a shared lazily initialized recorder.
func DefaultMetrics() MetricsRecorder {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetricsRecorder()
	})
	return defaultMetrics
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("github.com/convoflow/convoflow")

	runs, err := meter.Int64Counter("convoflow.runs",
		metric.WithDescription("Conversation runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram("convoflow.run.duration",
		metric.WithDescription("End-to-end run duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	runSteps, err := meter.Int64Histogram("convoflow.run.steps",
		metric.WithDescription("Stages executed per run"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram("convoflow.stage.duration",
		metric.WithDescription("Single stage execution duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stageErrors, err := meter.Int64Counter("convoflow.stage.errors",
		metric.WithDescription("Stage executions that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("convoflow.checkpoint.size",
		metric.WithDescription("Serialized checkpoint size"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	interrupts, err := meter.Int64Counter("convoflow.interrupts",
		metric.WithDescription("Runs paused awaiting authorization"),
		metric.WithUnit("{interrupt}"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		runs:           runs,
		runDuration:    runDuration,
		runSteps:       runSteps,
		stageDuration:  stageDuration,
		stageErrors:    stageErrors,
		checkpointSize: checkpointSize,
		interrupts:     interrupts,
	}, nil
}

func (m *otelMetrics) RecordRun(ctx context.Context, workflow, outcome string, durationMs float64, steps int) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, durationMs, attrs)
	m.runSteps.Record(ctx, int64(steps), attrs)
}

func (m *otelMetrics) RecordStage(ctx context.Context, workflow, stage string, durationMs float64, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("stage", stage),
	)
	m.stageDuration.Record(ctx, durationMs, attrs)
	if !success {
		m.stageErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, workflow string, sizeBytes int) {
	m.checkpointSize.Record(ctx, int64(sizeBytes),
		metric.WithAttributes(attribute.String("workflow", workflow)))
}

func (m *otelMetrics) RecordInterrupt(ctx context.Context, workflow, flag string) {
	m.interrupts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("flag", flag),
	))
}
