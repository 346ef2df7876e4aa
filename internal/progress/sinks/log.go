package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/ytdl-client/internal/job"
	"github.com/JakeFAU/ytdl-client/internal/progress"
)

// LogSink mirrors session events into the process log. Session log entries
// keep their severity; everything else is logged at debug level.
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
		if evt.Kind == progress.KindLog {
			s.logger.Log(levelFor(evt.Log.Level), evt.Log.Message, zap.String("job_id", evt.JobID))
			continue
		}
		s.logger.Debug("session event",
			zap.String("job_id", evt.JobID),
			zap.String("kind", string(evt.Kind)),
			zap.String("status", string(evt.Status)),
			zap.Int("progress", evt.Progress),
			zap.String("source", string(evt.Source)),
			zap.Duration("dur", evt.Dur),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(l job.LogLevel) zapcore.Level {
	switch l {
	case job.LevelError:
		return zapcore.ErrorLevel
	case job.LevelWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
