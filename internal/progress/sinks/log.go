// Package sinks provides progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"ipowatch/internal/progress"
)

// LogSink emits structured logs for crawl progress.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("kind", string(evt.Kind)),
		}
		if evt.Category != "" {
			fields = append(fields, zap.String("category", string(evt.Category)))
		}
		if evt.Kind == progress.KindPageDone {
			fields = append(fields,
				zap.Int("page", evt.Page),
				zap.Int("rows", evt.Rows),
			)
		}
		switch evt.Kind {
		case progress.KindPageDone, progress.KindCategoryDone, progress.KindRunDone:
			fields = append(fields,
				zap.Int("inserted", evt.Inserted),
				zap.Int("duplicates", evt.Duplicates),
				zap.Int("skipped", evt.Skipped),
			)
		}
		if evt.Err != "" {
			fields = append(fields, zap.String("error", evt.Err))
		}
		s.logger.Info("crawl progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
