package tracing

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TracedLogger writes correlated log lines and records them on its span.
// Lines take the form
//
//	[<traceId>:<spanId>] [tenant:<tenantId>] [user:<userId>] <message>
//
// and the logging package's line format prepends the timestamp and level.
type TracedLogger struct {
	tracer *Tracer
	tc     TraceContext
	prefix string
}

// NewTracedLogger binds a logger to tc.SpanID
func NewTracedLogger(t *Tracer, tc TraceContext) *TracedLogger {
	return &TracedLogger{
		tracer: t,
		tc:     tc,
		prefix: fmt.Sprintf("[%s:%s] [tenant:%s] [user:%s] ", tc.TraceID, tc.SpanID, tc.TenantID, tc.UserID),
	}
}

// Context returns the trace context the logger is bound to
func (l *TracedLogger) Context() TraceContext {
	return l.tc
}

func (l *TracedLogger) Debug(msg string, data ...attribute.KeyValue) {
	l.log(zapcore.DebugLevel, msg, data)
}

func (l *TracedLogger) Info(msg string, data ...attribute.KeyValue) {
	l.log(zapcore.InfoLevel, msg, data)
}

func (l *TracedLogger) Warn(msg string, data ...attribute.KeyValue) {
	l.log(zapcore.WarnLevel, msg, data)
}

func (l *TracedLogger) Error(msg string, data ...attribute.KeyValue) {
	l.log(zapcore.ErrorLevel, msg, data)
}

// Tag merges tags into the bound span
func (l *TracedLogger) Tag(kvs ...attribute.KeyValue) {
	l.tracer.AddTags(l.tc.SpanID, kvs...)
}

func (l *TracedLogger) log(level zapcore.Level, msg string, data []attribute.KeyValue) {
	// The line is written even when the span already finished
	if !l.tracer.appendLog(l.tc.SpanID, level, msg, data) {
		l.tracer.warnUnknownSpan(l.tc.SpanID, msg)
	}

	ce := l.tracer.logger.Check(level, l.prefix+msg)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, len(data))
	for _, kv := range data {
		fields = append(fields, zap.Any(string(kv.Key), kv.Value.AsInterface()))
	}
	ce.Write(fields...)
}
