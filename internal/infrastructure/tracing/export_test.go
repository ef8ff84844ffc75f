package tracing

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"
)

func TestExportTraceNotFound(t *testing.T) {
	tracer, _, _ := newTestTracer()

	_, err := tracer.ExportTrace("trace-missing")
	assert.ErrorIs(t, err, ErrTraceNotFound)
}

func TestExportTraceRoundTrip(t *testing.T) {
	tracer, clock, _ := newTestTracer()
	clock.Advance(123456789 * time.Nanosecond)

	root := tracer.StartSpan("load-dashboard", "trace-1", WithTags(attribute.String("tenant.id", "acme")))
	tracer.AddLog(root.SpanID, zapcore.WarnLevel, "slow widget", attribute.Int("widget", 3))
	clock.Advance(15 * time.Millisecond)
	child := tracer.StartSpan("fetch-projects", "trace-1", WithParent(root.SpanID))
	clock.Advance(20 * time.Millisecond)
	tracer.FinishSpan(child.SpanID, StatusError, errors.New("502 from api"))
	clock.Advance(5 * time.Millisecond)
	tracer.FinishSpan(root.SpanID, StatusSuccess, nil)

	export, err := tracer.ExportTrace("trace-1")
	require.NoError(t, err)

	raw, err := export.JSON()
	require.NoError(t, err)

	var decoded struct {
		TraceID string `json:"traceId"`
		Spans   []struct {
			SpanID       string         `json:"spanId"`
			ParentSpanID string         `json:"parentSpanId"`
			Operation    string         `json:"operation"`
			StartTime    time.Time      `json:"startTime"`
			EndTime      time.Time      `json:"endTime"`
			Duration     float64        `json:"duration"`
			Status       string         `json:"status"`
			Tags         map[string]any `json:"tags"`
			Logs         []struct {
				Timestamp time.Time      `json:"timestamp"`
				Level     string         `json:"level"`
				Message   string         `json:"message"`
				Data      map[string]any `json:"data"`
			} `json:"logs"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"spans"`
		Metadata struct {
			ExportedAt    time.Time `json:"exportedAt"`
			SpanCount     int       `json:"spanCount"`
			TotalDuration float64   `json:"totalDuration"`
			PendingSpans  int       `json:"pendingSpans"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "trace-1", decoded.TraceID)
	require.Len(t, decoded.Spans, 2)
	assert.Equal(t, 2, decoded.Metadata.SpanCount)
	assert.Zero(t, decoded.Metadata.PendingSpans)
	assert.Equal(t, 40.0, decoded.Metadata.TotalDuration)

	originals := tracer.GetTraceSpans("trace-1")
	for i, s := range decoded.Spans {
		assert.True(t, originals[i].StartTime.Equal(s.StartTime), "start time survives the round trip")
		assert.True(t, originals[i].EndTime.Equal(s.EndTime), "end time survives the round trip")
	}

	fetch := decoded.Spans[0]
	assert.Equal(t, "fetch-projects", fetch.Operation)
	assert.Equal(t, root.SpanID, fetch.ParentSpanID)
	assert.Equal(t, "error", fetch.Status)
	assert.Equal(t, 20.0, fetch.Duration)
	require.NotNil(t, fetch.Error)
	assert.Equal(t, "502 from api", fetch.Error.Message)

	dash := decoded.Spans[1]
	assert.Equal(t, "success", dash.Status)
	assert.Equal(t, "acme", dash.Tags["tenant.id"])
	assert.Nil(t, dash.Error)
	require.Len(t, dash.Logs, 1)
	assert.Equal(t, "warn", dash.Logs[0].Level)
	assert.Equal(t, "slow widget", dash.Logs[0].Message)
	assert.Equal(t, 3.0, dash.Logs[0].Data["widget"])
}

func TestExportTraceIgnoresPendingSpansForDuration(t *testing.T) {
	tracer, clock, _ := newTestTracer()

	pending := tracer.StartSpan("upload-plans", "trace-1")
	clock.Advance(10 * time.Millisecond)
	done := tracer.StartSpan("validate", "trace-1", WithParent(pending.SpanID))
	clock.Advance(25 * time.Millisecond)
	tracer.FinishSpan(done.SpanID, StatusSuccess, nil)
	clock.Advance(time.Minute)

	export, err := tracer.ExportTrace("trace-1")
	require.NoError(t, err)

	assert.Equal(t, 2, export.Metadata.SpanCount)
	assert.Equal(t, 1, export.Metadata.PendingSpans)
	// earliest start (pending span) to latest finished end
	assert.Equal(t, 35.0, export.Metadata.TotalDuration)

	var open *SpanExport
	for i := range export.Spans {
		if export.Spans[i].SpanID == pending.SpanID {
			open = &export.Spans[i]
		}
	}
	require.NotNil(t, open)
	assert.Nil(t, open.EndTime)
	assert.Nil(t, open.Duration)
	assert.Equal(t, StatusPending, open.Status)
}

func TestExportTraceAllPending(t *testing.T) {
	tracer, _, _ := newTestTracer()
	tracer.StartSpan("op", "trace-1")

	export, err := tracer.ExportTrace("trace-1")
	require.NoError(t, err)
	assert.Zero(t, export.Metadata.TotalDuration)
	assert.Equal(t, 1, export.Metadata.PendingSpans)
}
