package scopez

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogReporter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tracer := New(WithIDGenerator(SequentialIDs()))
	defer tracer.Close()
	tracer.AddReporter(NewLogReporter(zap.New(core)))

	parent := tracer.StartSpan("parent")
	child := tracer.StartSpan("child", ChildOf(parent.Context()), StartTime(1_000))
	child.SetTag("k", "v")
	child.FinishAt(3_000)

	entries := logs.FilterMessage("span finished").All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "child", fields["operation"])
	assert.Equal(t, parent.Context().SpanID(), fields["parent_id"])
	assert.Equal(t, child.Context().TraceID(), fields["trace_id"])
	assert.Equal(t, 2*time.Millisecond, fields["duration"])
	assert.EqualValues(t, 1, fields["tags"])
}

func TestLogReporterLevelAndNegativeDuration(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	debug := NewLogReporter(zap.New(core)).WithLevel(zapcore.DebugLevel)
	debug.Report(Record{SpanID: "quiet"})
	assert.Equal(t, 0, logs.Len())

	NewLogReporter(zap.New(core)).Report(Record{SpanID: "odd", Start: 10, End: 5, Duration: -5 * time.Microsecond})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, true, logs.All()[0].ContextMap()["negative_duration"])

	// A nil logger must not panic.
	NewLogReporter(nil).Report(Record{})
}

func TestTracerLogsHandlerPanicsAndIgnoredCloses(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New(WithLogger(zap.New(core)))
	defer tracer.Close()
	tracer.OnSpanComplete(func(_ Record) { panic("handler failure") })

	slot := NewSlot()
	a := tracer.StartActive(slot, "A")
	b := tracer.StartActive(slot, "B")
	a.Close()
	b.Close()

	assert.Equal(t, 1, logs.FilterMessage("ignored close of inactive scope").Len())
	panics := logs.FilterMessage("span handler panicked").All()
	require.Len(t, panics, 1)
	assert.Equal(t, zapcore.ErrorLevel, panics[0].Level)
}
