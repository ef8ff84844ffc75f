package tracing

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/sitetrace/backend/internal/shared/id"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fixed tags attached to every span
const (
	TagSpanKind = "span.kind"
	TagService  = "service.name"

	spanKindInternal = "internal"
)

// Recorder receives lifecycle counts, typically for Prometheus
type Recorder interface {
	SpanStarted(operation string)
	SpanFinished(operation, status string, duration time.Duration)
	SpansEvicted(reason string, n int)
	SetActiveSpans(n int)
}

// Exporter receives a snapshot of every finished span
type Exporter interface {
	ExportSpan(span Span)
}

// Tracer owns the span store and exposes the lifecycle API. A Tracer is safe
// for concurrent use.
type Tracer struct {
	service string
	logger  *zap.Logger
	clock   clockwork.Clock
	ids     *id.Generator
	store   *store

	metricsWindow time.Duration
	spanTimeout   time.Duration

	recorder  Recorder
	exporters []Exporter
}

// Option configures a Tracer
type Option func(*Tracer)

// WithClock sets the time source
func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracer) { t.clock = clock }
}

// WithHistoryLimit bounds the completed-span history
func WithHistoryLimit(n int) Option {
	return func(t *Tracer) { t.store = newStore(n) }
}

// WithMetricsWindow sets the rolling window used by GetMetrics
func WithMetricsWindow(d time.Duration) Option {
	return func(t *Tracer) { t.metricsWindow = d }
}

// WithSpanTimeout makes maintenance fail active spans older than d.
// Zero disables the check.
func WithSpanTimeout(d time.Duration) Option {
	return func(t *Tracer) { t.spanTimeout = d }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(t *Tracer) { t.recorder = r }
}

// WithExporter attaches a finished-span exporter
func WithExporter(e Exporter) Option {
	return func(t *Tracer) { t.exporters = append(t.exporters, e) }
}

// New creates a tracer for service
func New(service string, logger *zap.Logger, opts ...Option) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracer{
		service:       service,
		logger:        logger,
		clock:         clockwork.NewRealClock(),
		store:         newStore(DefaultHistoryLimit),
		metricsWindow: time.Hour,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ids = id.NewGenerator(t.clock)

	return t
}

// Service returns the service name stamped on every span
func (t *Tracer) Service() string {
	return t.service
}

// now strips the monotonic reading so stored durations always equal
// EndTime minus StartTime
func (t *Tracer) now() time.Time {
	return t.clock.Now().Round(0)
}

// ============================================================================
// Span Lifecycle
// ============================================================================

// SpanOption configures StartSpan
type SpanOption func(*Span)

// WithParent sets the parent span reference
func WithParent(spanID string) SpanOption {
	return func(s *Span) { s.ParentSpanID = spanID }
}

// WithTags sets initial tags. They are applied over the fixed tags.
func WithTags(kvs ...attribute.KeyValue) SpanOption {
	return func(s *Span) {
		for _, kv := range kvs {
			s.Tags[string(kv.Key)] = kv.Value
		}
	}
}

// StartSpan registers a new pending span and returns a snapshot of it
func (t *Tracer) StartSpan(operation, traceID string, opts ...SpanOption) Span {
	span := &Span{
		TraceID:   traceID,
		SpanID:    t.ids.NewSpanID().String(),
		Operation: operation,
		StartTime: t.now(),
		Status:    StatusPending,
		Tags: map[string]attribute.Value{
			TagSpanKind: attribute.StringValue(spanKindInternal),
			TagService:  attribute.StringValue(t.service),
		},
	}
	for _, opt := range opts {
		opt(span)
	}

	snapshot := span.clone()
	active := t.store.insert(span)

	t.logger.Debug("span started",
		zap.String("trace_id", snapshot.TraceID),
		zap.String("span_id", snapshot.SpanID),
		zap.String("parent_id", snapshot.ParentSpanID),
		zap.String("operation", operation),
	)

	if t.recorder != nil {
		t.recorder.SpanStarted(operation)
		t.recorder.SetActiveSpans(active)
	}

	return snapshot
}

// FinishSpan completes an active span. StatusPending means "not specified"
// and resolves to success. err is attached only when the final status is
// error. Unknown span IDs are logged and ignored so a double finish or a
// finish after the span timed out never hurts the caller.
func (t *Tracer) FinishSpan(spanID string, status Status, err error) (Span, bool) {
	if status == StatusPending {
		status = StatusSuccess
	}

	var spanErr *SpanError
	if status == StatusError {
		spanErr = captureError(err)
	}

	done, evicted, ok := t.store.finish(spanID, t.now(), status, spanErr)
	if !ok {
		t.logger.Warn("finish requested for unknown span", zap.String("span_id", spanID))
		return Span{}, false
	}

	t.logger.Debug("span finished",
		zap.String("trace_id", done.TraceID),
		zap.String("span_id", done.SpanID),
		zap.String("operation", done.Operation),
		zap.Stringer("status", done.Status),
		zap.Duration("duration", *done.Duration),
	)

	if t.recorder != nil {
		t.recorder.SpanFinished(done.Operation, done.Status.String(), *done.Duration)
		t.recorder.SetActiveSpans(t.store.activeCount())
		if evicted > 0 {
			t.recorder.SpansEvicted("capacity", evicted)
		}
	}
	for _, e := range t.exporters {
		e.ExportSpan(done.clone())
	}

	return done, true
}

// AddLog appends a log entry to an active span. Returns false, after a
// warning, when the span is not active.
func (t *Tracer) AddLog(spanID string, level zapcore.Level, message string, data ...attribute.KeyValue) bool {
	if !t.appendLog(spanID, level, message, data) {
		t.warnUnknownSpan(spanID, message)
		return false
	}

	t.logger.Debug("span log",
		zap.String("span_id", spanID),
		zap.Stringer("level", level),
		zap.String("message", message),
	)
	return true
}

func (t *Tracer) warnUnknownSpan(spanID, message string) {
	t.logger.Warn("log for unknown span",
		zap.String("span_id", spanID),
		zap.String("message", message),
	)
}

func (t *Tracer) appendLog(spanID string, level zapcore.Level, message string, data []attribute.KeyValue) bool {
	entry := LogEntry{
		Timestamp: t.now(),
		Level:     normalizeLevel(level),
		Message:   message,
		Data:      append([]attribute.KeyValue(nil), data...),
		SpanID:    spanID,
	}

	return t.store.appendLog(spanID, entry)
}

// AddTags merges tags into an active span. Tagging is best effort: unknown
// spans are ignored without a warning.
func (t *Tracer) AddTags(spanID string, kvs ...attribute.KeyValue) bool {
	return t.store.mergeTags(spanID, kvs)
}

// GetActiveSpan looks up an active span
func (t *Tracer) GetActiveSpan(spanID string) (Span, bool) {
	return t.store.get(spanID)
}

// GetTraceSpans returns active and completed spans of a trace
func (t *Tracer) GetTraceSpans(traceID string) []Span {
	return t.store.byTrace(traceID)
}

// ActiveCount returns the number of active spans
func (t *Tracer) ActiveCount() int {
	return t.store.activeCount()
}

// CompletedCount returns the size of the completed history
func (t *Tracer) CompletedCount() int {
	return t.store.completedCount()
}

// captureError converts err into the stored failure detail
func captureError(err error) *SpanError {
	if err == nil {
		return &SpanError{Message: "unknown error"}
	}

	var se *SpanError
	if errors.As(err, &se) {
		return &SpanError{Message: err.Error(), Stack: se.Stack}
	}

	type stackTracer interface{ StackTrace() string }
	var st stackTracer
	if errors.As(err, &st) {
		return &SpanError{Message: err.Error(), Stack: st.StackTrace()}
	}

	// Some error packages print frames under %+v
	detail := fmt.Sprintf("%+v", err)
	if detail == err.Error() {
		detail = ""
	}
	return &SpanError{Message: err.Error(), Stack: detail}
}
