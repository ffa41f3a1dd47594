package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/OliWebDevO/clients-scraper/internal/progress"
)

// LogSink emits structured logs for progress streams. Intermediate events log
// at debug level; terminal events log at info or warn.
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
		level := zapcore.DebugLevel
		switch evt.Type {
		case progress.TypeComplete:
			level = zapcore.InfoLevel
		case progress.TypeError:
			level = zapcore.WarnLevel
		}
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("kind", evt.Kind),
			zap.String("type", string(evt.Type)),
			zap.String("phase", string(evt.Phase)),
			zap.Int("progress", evt.Progress),
			zap.Int("current", evt.Current),
			zap.Int("total", evt.Total),
			zap.String("message", evt.Message),
		}
		if evt.Item != "" {
			fields = append(fields, zap.String("item", evt.Item))
		}
		if evt.Type == progress.TypeComplete {
			fields = append(fields, zap.Int("items_found", evt.ItemsFound), zap.Strings("errors", evt.Errors))
		}
		s.logger.Log(level, "progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
