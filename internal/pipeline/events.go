package pipeline

import (
	"context"
	"log/slog"
	"time"

	"multiscribe/internal/logging"
	"multiscribe/internal/stage"
)

// EventSink receives progress notifications as the batch advances. Sinks
// must be safe for reentrant calls from a single goroutine; the runner never
// calls them concurrently.
type EventSink interface {
	StageStarted(ctx context.Context, url string, st stage.Stage)
	StageCompleted(ctx context.Context, url string, st stage.Stage, took time.Duration)
	StageFailed(ctx context.Context, url string, st stage.Stage, err error)
	BatchCompleted(ctx context.Context, result *BatchResult)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) StageStarted(context.Context, string, stage.Stage)                 {}
func (NopSink) StageCompleted(context.Context, string, stage.Stage, time.Duration) {}
func (NopSink) StageFailed(context.Context, string, stage.Stage, error)           {}
func (NopSink) BatchCompleted(context.Context, *BatchResult)                      {}

// LogSink emits structured log records for each event.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink wraps a logger as an event sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) StageStarted(ctx context.Context, url string, st stage.Stage) {
	logging.WithContext(ctx, s.logger).Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String(logging.FieldStage, st.String()),
		logging.String(logging.FieldURL, url))
}

func (s *LogSink) StageCompleted(ctx context.Context, url string, st stage.Stage, took time.Duration) {
	logging.WithContext(ctx, s.logger).Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String(logging.FieldStage, st.String()),
		logging.String(logging.FieldURL, url),
		logging.Duration("stage_duration", took))
}

func (s *LogSink) StageFailed(ctx context.Context, url string, st stage.Stage, err error) {
	logging.WithContext(ctx, s.logger).Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldStage, st.String()),
		logging.String(logging.FieldURL, url),
		logging.Error(err))
}

func (s *LogSink) BatchCompleted(ctx context.Context, result *BatchResult) {
	logging.WithContext(ctx, s.logger).Info("batch completed",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("processed", result.Processed()),
		logging.Int("skipped", result.Skipped()),
		logging.Int("failed", result.Failed()),
		logging.Duration("batch_duration", result.Finished.Sub(result.Started)))
}
