package tracing

import (
	"errors"
	"time"

	"github.com/bytedance/sonic"
)

// ErrTraceNotFound is returned when no active or completed span carries
// the requested trace ID
var ErrTraceNotFound = errors.New("trace not found")

// TraceExport is the serialized form of a whole trace
type TraceExport struct {
	TraceID  string         `json:"traceId"`
	Spans    []SpanExport   `json:"spans"`
	Metadata ExportMetadata `json:"metadata"`
}

// SpanExport is the serialized form of one span. Durations are milliseconds.
type SpanExport struct {
	TraceID      string         `json:"traceId"`
	SpanID       string         `json:"spanId"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Operation    string         `json:"operation"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      *time.Time     `json:"endTime,omitempty"`
	Duration     *float64       `json:"duration,omitempty"`
	Status       Status         `json:"status"`
	Tags         map[string]any `json:"tags"`
	Logs         []LogExport    `json:"logs"`
	Error        *SpanError     `json:"error,omitempty"`
}

// LogExport is the serialized form of a span log entry
type LogExport struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// ExportMetadata describes an export. TotalDuration spans the earliest start
// to the latest end among finished spans; PendingSpans counts spans left out
// of that computation because they have no end yet.
type ExportMetadata struct {
	ExportedAt    time.Time `json:"exportedAt"`
	SpanCount     int       `json:"spanCount"`
	TotalDuration float64   `json:"totalDuration"`
	PendingSpans  int       `json:"pendingSpans"`
}

// ExportTrace serializes all spans of a trace
func (t *Tracer) ExportTrace(traceID string) (TraceExport, error) {
	spans := t.GetTraceSpans(traceID)
	if len(spans) == 0 {
		return TraceExport{}, ErrTraceNotFound
	}

	out := TraceExport{
		TraceID: traceID,
		Spans:   make([]SpanExport, 0, len(spans)),
	}

	var earliest, latest time.Time
	for i, s := range spans {
		out.Spans = append(out.Spans, ExportSpan(s))

		if i == 0 || s.StartTime.Before(earliest) {
			earliest = s.StartTime
		}
		if s.EndTime == nil {
			out.Metadata.PendingSpans++
			continue
		}
		if s.EndTime.After(latest) {
			latest = *s.EndTime
		}
	}

	out.Metadata.ExportedAt = t.now().UTC()
	out.Metadata.SpanCount = len(spans)
	if !latest.IsZero() {
		out.Metadata.TotalDuration = milliseconds(latest.Sub(earliest))
	}
	return out, nil
}

// ExportSpan converts one span snapshot into its serialized form
func ExportSpan(s Span) SpanExport {
	out := SpanExport{
		TraceID:      s.TraceID,
		SpanID:       s.SpanID,
		ParentSpanID: s.ParentSpanID,
		Operation:    s.Operation,
		StartTime:    s.StartTime.UTC(),
		Status:       s.Status,
		Tags:         plainValues(s.Tags),
		Logs:         make([]LogExport, 0, len(s.Logs)),
		Error:        s.Error,
	}
	if s.EndTime != nil {
		end := s.EndTime.UTC()
		out.EndTime = &end
	}
	if s.Duration != nil {
		ms := milliseconds(*s.Duration)
		out.Duration = &ms
	}
	for _, l := range s.Logs {
		out.Logs = append(out.Logs, LogExport{
			Timestamp: l.Timestamp.UTC(),
			Level:     l.Level.String(),
			Message:   l.Message,
			Data:      plainKeyValues(l.Data),
		})
	}
	return out
}

// JSON encodes the export
func (e TraceExport) JSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal(e)
}
