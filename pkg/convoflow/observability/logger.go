// Package observability provides structured logging, metrics, and tracing
// for conversation runs: slog log helpers, OTel counters and histograms,
// and per-run/per-stage spans. Everything is opt-in with no-op defaults.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds conversation context to a logger.
func EnrichLogger(logger *slog.Logger, threadID, stageID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("stage", stageID),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a conversation run.
func LogRunStart(logger *slog.Logger, threadID, entryStage string) {
	if logger == nil {
		return
	}
	logger.Info("conversation run starting",
		slog.String("thread_id", threadID),
		slog.String("entry_stage", entryStage),
	)
}

// LogRunComplete logs a run that reached the terminal marker.
func LogRunComplete(logger *slog.Logger, threadID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("conversation run completed",
		slog.String("thread_id", threadID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunInterrupted logs a run paused for external authorization.
func LogRunInterrupted(logger *slog.Logger, threadID, pendingStage, reason string) {
	if logger == nil {
		return
	}
	logger.Info("conversation run interrupted",
		slog.String("thread_id", threadID),
		slog.String("pending_stage", pendingStage),
		slog.String("reason", reason),
	)
}

// LogRunError logs a failed run.
func LogRunError(logger *slog.Logger, threadID string, err error, durationMs float64, lastStage string) {
	if logger == nil {
		return
	}
	logger.Error("conversation run failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_stage", lastStage),
	)
}

// LogStageStart logs stage execution start.
func LogStageStart(logger *slog.Logger, stageID string) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting", slog.String("stage", stageID))
}

// LogStageComplete logs successful stage completion.
func LogStageComplete(logger *slog.Logger, stageID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("stage", stageID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageError logs a stage failure.
func LogStageError(logger *slog.Logger, stageID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("stage", stageID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs a checkpoint write.
func LogCheckpoint(logger *slog.Logger, threadID string, sequence, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("thread_id", threadID),
		slog.Int("sequence", sequence),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a checkpoint failure.
func LogCheckpointError(logger *slog.Logger, threadID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("thread_id", threadID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures an operation. The returned function reports the
// elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
