package scopez

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogReporter writes every finished span to a zap logger.
type LogReporter struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogReporter creates a reporter logging at info level.
// A nil logger discards everything.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger, level: zapcore.InfoLevel}
}

// WithLevel returns a copy of r logging at level.
func (r *LogReporter) WithLevel(level zapcore.Level) *LogReporter {
	return &LogReporter{logger: r.logger, level: level}
}

// Report implements Reporter.
func (r *LogReporter) Report(record Record) {
	ce := r.logger.Check(r.level, "span finished")
	if ce == nil {
		return
	}

	fields := []zap.Field{
		zap.String("trace_id", record.TraceID),
		zap.String("span_id", record.SpanID),
		zap.String("operation", record.Operation),
		zap.Int64("start_us", record.Start),
		zap.Duration("duration", record.Duration),
		zap.Int("tags", len(record.Tags)),
		zap.Int("logs", len(record.Logs)),
	}
	if record.ParentID != "" {
		fields = append(fields, zap.String("parent_id", record.ParentID))
	}
	if record.Duration < 0 {
		fields = append(fields, zap.Bool("negative_duration", true))
	}
	ce.Write(fields...)
}
