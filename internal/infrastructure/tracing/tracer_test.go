package tracing

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"
)

func TestSpanLifecycleScenario(t *testing.T) {
	tracer, clock, _ := newTestTracer()

	span := tracer.StartSpan("load-dashboard", "trace-1")
	assert.Equal(t, StatusPending, span.Status)
	assert.Equal(t, "trace-1", span.TraceID)
	assert.True(t, strings.HasPrefix(span.SpanID, "span_"))
	assert.Equal(t, "internal", span.Tags[TagSpanKind].AsString())
	assert.Equal(t, "portal", span.Tags[TagService].AsString())

	require.True(t, tracer.AddLog(span.SpanID, zapcore.InfoLevel, "fetch started"))

	active, ok := tracer.GetActiveSpan(span.SpanID)
	require.True(t, ok)
	require.Len(t, active.Logs, 1)
	assert.Equal(t, "fetch started", active.Logs[0].Message)
	assert.Equal(t, "trace-1", active.Logs[0].TraceID)
	assert.Equal(t, span.SpanID, active.Logs[0].SpanID)

	clock.Advance(40 * time.Millisecond)
	done, ok := tracer.FinishSpan(span.SpanID, StatusSuccess, nil)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, done.Status)
	require.NotNil(t, done.Duration)
	assert.GreaterOrEqual(t, *done.Duration, time.Duration(0))

	_, ok = tracer.GetActiveSpan(span.SpanID)
	assert.False(t, ok)

	spans := tracer.GetTraceSpans("trace-1")
	require.Len(t, spans, 1)
	assert.Equal(t, span.SpanID, spans[0].SpanID)
	assert.Equal(t, StatusSuccess, spans[0].Status)
}

func TestFinishSpanIsIdempotent(t *testing.T) {
	tracer, _, logs := newTestTracer()

	span := tracer.StartSpan("op", "trace-1")

	_, ok := tracer.FinishSpan(span.SpanID, StatusSuccess, nil)
	require.True(t, ok)

	assert.NotPanics(t, func() {
		_, ok = tracer.FinishSpan(span.SpanID, StatusError, errors.New("late"))
	})
	assert.False(t, ok)

	spans := tracer.GetTraceSpans("trace-1")
	require.Len(t, spans, 1)
	assert.Equal(t, StatusSuccess, spans[0].Status)
	assert.Nil(t, spans[0].Error)

	assert.Equal(t, 1, logs.FilterMessage("finish requested for unknown span").Len())

	_, ok = tracer.FinishSpan("span_never_started", StatusSuccess, nil)
	assert.False(t, ok)
}

func TestFinishDurationEqualsEndMinusStart(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		status  Status
		want    Status
	}{
		{"default status is success", 250 * time.Millisecond, StatusPending, StatusSuccess},
		{"explicit success", time.Second, StatusSuccess, StatusSuccess},
		{"explicit error", 3 * time.Millisecond, StatusError, StatusError},
		{"zero elapsed", 0, StatusSuccess, StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, clock, _ := newTestTracer()

			span := tracer.StartSpan("op", "trace-1")
			clock.Advance(tt.elapsed)
			done, ok := tracer.FinishSpan(span.SpanID, tt.status, nil)
			require.True(t, ok)

			require.NotNil(t, done.EndTime)
			require.NotNil(t, done.Duration)
			assert.Equal(t, tt.elapsed, *done.Duration)
			assert.Equal(t, done.EndTime.Sub(done.StartTime), *done.Duration)
			assert.Equal(t, tt.want, done.Status)
		})
	}
}

func TestFinishWithErrorCopiesDetailIntoTags(t *testing.T) {
	tracer, _, _ := newTestTracer()

	span := tracer.StartSpan("save-invoice", "trace-1")
	done, ok := tracer.FinishSpan(span.SpanID, StatusError, &SpanError{Message: "db down", Stack: "at save()"})
	require.True(t, ok)

	require.NotNil(t, done.Error)
	assert.Equal(t, "db down", done.Error.Message)
	assert.Equal(t, "at save()", done.Error.Stack)
	assert.Equal(t, "db down", done.Tags["error.message"].AsString())
	assert.Equal(t, "at save()", done.Tags["error.stack"].AsString())
	assert.True(t, done.Tags["error"].AsBool())
}

func TestFinishSuccessIgnoresError(t *testing.T) {
	tracer, _, _ := newTestTracer()

	span := tracer.StartSpan("op", "trace-1")
	done, ok := tracer.FinishSpan(span.SpanID, StatusSuccess, errors.New("ignored"))
	require.True(t, ok)

	assert.Nil(t, done.Error)
	_, tagged := done.Tags["error.message"]
	assert.False(t, tagged)
}

func TestAddLogAfterFinishDoesNotResurrect(t *testing.T) {
	tracer, _, logs := newTestTracer()

	span := tracer.StartSpan("op", "trace-1")
	tracer.FinishSpan(span.SpanID, StatusSuccess, nil)

	assert.False(t, tracer.AddLog(span.SpanID, zapcore.InfoLevel, "too late"))
	assert.Equal(t, 1, logs.FilterMessage("log for unknown span").Len())

	_, ok := tracer.GetActiveSpan(span.SpanID)
	assert.False(t, ok)

	spans := tracer.GetTraceSpans("trace-1")
	require.Len(t, spans, 1)
	assert.Empty(t, spans[0].Logs)
}

func TestAddLogPreservesOrderAndClampsLevel(t *testing.T) {
	tracer, _, _ := newTestTracer()

	span := tracer.StartSpan("op", "trace-1")
	for i := 0; i < 5; i++ {
		tracer.AddLog(span.SpanID, zapcore.InfoLevel, fmt.Sprintf("step %d", i), attribute.Int("i", i))
	}
	tracer.AddLog(span.SpanID, zapcore.FatalLevel, "fatal")

	active, ok := tracer.GetActiveSpan(span.SpanID)
	require.True(t, ok)
	require.Len(t, active.Logs, 6)
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("step %d", i), active.Logs[i].Message)
	}
	assert.Equal(t, zapcore.ErrorLevel, active.Logs[5].Level)
}

func TestAddTags(t *testing.T) {
	tracer, _, logs := newTestTracer()

	span := tracer.StartSpan("op", "trace-1", WithTags(attribute.String("tenant.id", "acme")))
	require.True(t, tracer.AddTags(span.SpanID, attribute.Int("rows", 42), attribute.String("tenant.id", "globex")))

	active, _ := tracer.GetActiveSpan(span.SpanID)
	assert.Equal(t, int64(42), active.Tags["rows"].AsInt64())
	assert.Equal(t, "globex", active.Tags["tenant.id"].AsString())

	tracer.FinishSpan(span.SpanID, StatusSuccess, nil)
	before := logs.FilterLevelExact(zapcore.WarnLevel).Len()
	assert.False(t, tracer.AddTags(span.SpanID, attribute.Bool("late", true)))
	assert.Equal(t, before, logs.FilterLevelExact(zapcore.WarnLevel).Len(), "tagging an unknown span is silent")
}

func TestSnapshotsAreIsolated(t *testing.T) {
	tracer, _, _ := newTestTracer()

	span := tracer.StartSpan("op", "trace-1")
	span.Tags["mutated"] = attribute.BoolValue(true)

	active, _ := tracer.GetActiveSpan(span.SpanID)
	_, leaked := active.Tags["mutated"]
	assert.False(t, leaked)
}

func TestGetTraceSpansFiltersByTrace(t *testing.T) {
	tracer, clock, _ := newTestTracer()

	a1 := tracer.StartSpan("a1", "trace-a")
	clock.Advance(time.Millisecond)
	a2 := tracer.StartSpan("a2", "trace-a", WithParent(a1.SpanID))
	b1 := tracer.StartSpan("b1", "trace-b")
	tracer.FinishSpan(a2.SpanID, StatusSuccess, nil)
	tracer.FinishSpan(b1.SpanID, StatusSuccess, nil)

	spans := tracer.GetTraceSpans("trace-a")
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, "trace-a", s.TraceID)
	}
	assert.Equal(t, a1.SpanID, spans[0].SpanID, "active spans come first")
	assert.Equal(t, a2.SpanID, spans[1].SpanID)
	assert.Equal(t, a1.SpanID, spans[1].ParentSpanID)

	assert.Equal(t, spans, tracer.GetTraceSpans("trace-a"), "order is stable for a given state")
	assert.Empty(t, tracer.GetTraceSpans("trace-missing"))
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	rec := newFakeRecorder()
	tracer, _, _ := newTestTracer(WithHistoryLimit(1000), WithRecorder(rec))

	for i := 0; i < 1001; i++ {
		span := tracer.StartSpan("op", fmt.Sprintf("trace-%d", i))
		tracer.FinishSpan(span.SpanID, StatusSuccess, nil)
	}

	assert.Equal(t, 1000, tracer.CompletedCount())
	assert.Empty(t, tracer.GetTraceSpans("trace-0"), "first completed span is evicted")
	assert.Len(t, tracer.GetTraceSpans("trace-1"), 1)
	assert.Len(t, tracer.GetTraceSpans("trace-1000"), 1)
	assert.Equal(t, 1, rec.evicted["capacity"])
}

func TestCreateTraceContext(t *testing.T) {
	tracer, _, _ := newTestTracer()

	fresh := tracer.CreateTraceContext("load-dashboard", "sess-1", "acme", "user-7")
	assert.True(t, strings.HasPrefix(fresh.TraceID, "trace_"))
	assert.True(t, strings.HasPrefix(fresh.SpanID, "span_"))
	assert.True(t, strings.HasPrefix(fresh.RequestID, "req_"))
	assert.Equal(t, "sess-1", fresh.SessionID)
	assert.Equal(t, "acme", fresh.TenantID)
	assert.Equal(t, "user-7", fresh.UserID)
	assert.Equal(t, "load-dashboard", fresh.Operation)
	assert.Equal(t, epoch, fresh.Timestamp)
	assert.Empty(t, fresh.ParentSpanID)

	cont := tracer.CreateTraceContext("load-widget", "sess-1", "acme", "user-7",
		WithTraceID(fresh.TraceID), WithParentSpan(fresh.SpanID))
	assert.Equal(t, fresh.TraceID, cont.TraceID)
	assert.Equal(t, fresh.SpanID, cont.ParentSpanID)
	assert.NotEqual(t, fresh.SpanID, cont.SpanID)
	assert.NotEqual(t, fresh.RequestID, cont.RequestID)

	assert.Zero(t, tracer.ActiveCount(), "creating a context registers nothing")
}

func TestRecorderAndExporterSeeLifecycle(t *testing.T) {
	rec := newFakeRecorder()
	exp := &collectingExporter{}
	tracer, clock, _ := newTestTracer(WithRecorder(rec), WithExporter(exp))

	span := tracer.StartSpan("sync-equipment", "trace-1")
	clock.Advance(5 * time.Millisecond)
	tracer.FinishSpan(span.SpanID, StatusError, errors.New("timeout"))

	assert.Equal(t, []string{"sync-equipment"}, rec.started)
	require.Len(t, rec.finishes(), 1)
	assert.Equal(t, recordedFinish{"sync-equipment", "error", 5 * time.Millisecond}, rec.finishes()[0])
	assert.Zero(t, rec.active)

	exported := exp.exported()
	require.Len(t, exported, 1)
	assert.Equal(t, span.SpanID, exported[0].SpanID)
	assert.Equal(t, "timeout", exported[0].Error.Message)
}

func TestConcurrentLifecycle(t *testing.T) {
	tracer := New("portal", nil)

	const workers = 20
	const spansPerWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			traceID := fmt.Sprintf("trace-%d", w)
			for i := 0; i < spansPerWorker; i++ {
				span := tracer.StartSpan("op", traceID)
				tracer.AddLog(span.SpanID, zapcore.DebugLevel, "working")
				tracer.AddTags(span.SpanID, attribute.Int("i", i))
				_ = tracer.GetMetrics()
				tracer.FinishSpan(span.SpanID, StatusSuccess, nil)
			}
		}(w)
	}
	wg.Wait()

	assert.Zero(t, tracer.ActiveCount())
	assert.Equal(t, workers*spansPerWorker, tracer.CompletedCount())
	for w := 0; w < workers; w++ {
		assert.Len(t, tracer.GetTraceSpans(fmt.Sprintf("trace-%d", w)), spansPerWorker)
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusSuccess, StatusError} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var parsed Status
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStatus("done")
	assert.Error(t, err)
}
