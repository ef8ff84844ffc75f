package tracing

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"
)

// Status is the lifecycle state of a span
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

// String returns the wire name of the status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts a wire name into a Status
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "success":
		return StatusSuccess, nil
	case "error":
		return StatusError, nil
	default:
		return StatusPending, fmt.Errorf("unknown span status %q", s)
	}
}

// TraceContext identifies one logical request or operation
type TraceContext struct {
	TraceID      string    `json:"traceId"`
	SpanID       string    `json:"spanId"`
	ParentSpanID string    `json:"parentSpanId,omitempty"`
	RequestID    string    `json:"requestId"`
	SessionID    string    `json:"sessionId"`
	TenantID     string    `json:"tenantId"`
	UserID       string    `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
	Operation    string    `json:"operation"`
}

// SpanError is the captured failure of a span. It also satisfies error so
// failures reported by remote clients can be passed to FinishSpan as is.
type SpanError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *SpanError) Error() string { return e.Message }

// StackTrace returns the captured stack, if any
func (e *SpanError) StackTrace() string { return e.Stack }

// LogEntry is one log line recorded against a span
type LogEntry struct {
	Timestamp time.Time
	Level     zapcore.Level
	Message   string
	Data      []attribute.KeyValue
	TraceID   string
	SpanID    string
}

// Span is one measured unit of work. Values handed out by the tracer are
// snapshots; mutating them does not affect the store.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Operation    string
	StartTime    time.Time
	EndTime      *time.Time
	Duration     *time.Duration
	Status       Status
	Tags         map[string]attribute.Value
	Logs         []LogEntry
	Error        *SpanError
}

// Finished reports whether the span reached a terminal status
func (s Span) Finished() bool {
	return s.Status != StatusPending
}

// clone deep-copies the mutable parts of a span
func (s *Span) clone() Span {
	c := *s

	c.Tags = make(map[string]attribute.Value, len(s.Tags))
	for k, v := range s.Tags {
		c.Tags[k] = v
	}

	c.Logs = make([]LogEntry, len(s.Logs))
	copy(c.Logs, s.Logs)

	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	if s.Duration != nil {
		d := *s.Duration
		c.Duration = &d
	}
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	return c
}

// normalizeLevel folds zap's panic and fatal levels into error, the highest
// level a span log carries
func normalizeLevel(l zapcore.Level) zapcore.Level {
	switch {
	case l < zapcore.DebugLevel:
		return zapcore.DebugLevel
	case l > zapcore.ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return l
	}
}

// ParseLevel accepts debug, info, warn and error
func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}
