package tracing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OTelForwarder replays finished spans into an OpenTelemetry pipeline.
// String IDs are hashed into OTel trace and span IDs, so parent links
// survive the translation.
type OTelForwarder struct {
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewOTelForwarder forwards to exporter. Extra provider options are applied
// last; tests pass sdktrace.WithSyncer to export synchronously.
func NewOTelForwarder(service string, exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *OTelForwarder {
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(service))),
		sdktrace.WithIDGenerator(hashedIDs{}),
	}
	if exporter != nil {
		base = append(base, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(append(base, opts...)...)
	return &OTelForwarder{
		provider: provider,
		tracer:   provider.Tracer("github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"),
	}
}

// NewOTLPForwarder forwards over OTLP/gRPC. The endpoint and credentials
// come from the standard OTEL_EXPORTER_OTLP_* environment variables.
func NewOTLPForwarder(ctx context.Context, service string) (*OTelForwarder, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	return NewOTelForwarder(service, exporter), nil
}

// ExportSpan implements Exporter
func (f *OTelForwarder) ExportSpan(s Span) {
	if s.EndTime == nil {
		return
	}

	traceID := hashTraceID(s.TraceID)
	ctx := context.WithValue(context.Background(), otelIDKey{}, otelIDs{
		trace: traceID,
		span:  hashSpanID(s.SpanID),
	})
	if s.ParentSpanID != "" {
		parent := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     hashSpanID(s.ParentSpanID),
			TraceFlags: oteltrace.FlagsSampled,
			Remote:     true,
		})
		ctx = oteltrace.ContextWithRemoteSpanContext(ctx, parent)
	}

	attrs := make([]attribute.KeyValue, 0, len(s.Tags)+2)
	for k, v := range s.Tags {
		attrs = append(attrs, attribute.KeyValue{Key: attribute.Key(k), Value: v})
	}
	attrs = append(attrs,
		attribute.String("sitetrace.trace_id", s.TraceID),
		attribute.String("sitetrace.span_id", s.SpanID),
	)

	_, span := f.tracer.Start(ctx, s.Operation,
		oteltrace.WithTimestamp(s.StartTime),
		oteltrace.WithAttributes(attrs...),
		oteltrace.WithSpanKind(spanKind(s.Tags)),
	)

	for _, l := range s.Logs {
		span.AddEvent(l.Message,
			oteltrace.WithTimestamp(l.Timestamp),
			oteltrace.WithAttributes(append([]attribute.KeyValue{attribute.String("level", l.Level.String())}, l.Data...)...),
		)
	}

	if s.Status == StatusError {
		msg := ""
		if s.Error != nil {
			msg = s.Error.Message
		}
		span.SetStatus(codes.Error, msg)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End(oteltrace.WithTimestamp(*s.EndTime))
}

// Shutdown flushes pending spans and stops the provider
func (f *OTelForwarder) Shutdown(ctx context.Context) error {
	return f.provider.Shutdown(ctx)
}

func spanKind(tags map[string]attribute.Value) oteltrace.SpanKind {
	v, ok := tags[TagSpanKind]
	if !ok {
		return oteltrace.SpanKindInternal
	}
	switch v.AsString() {
	case "server":
		return oteltrace.SpanKindServer
	case "client":
		return oteltrace.SpanKindClient
	default:
		return oteltrace.SpanKindInternal
	}
}

func hashTraceID(s string) oteltrace.TraceID {
	sum := sha256.Sum256([]byte(s))
	var tid oteltrace.TraceID
	copy(tid[:], sum[:len(tid)])
	return tid
}

func hashSpanID(s string) oteltrace.SpanID {
	sum := sha256.Sum256([]byte(s))
	var sid oteltrace.SpanID
	copy(sid[:], sum[:len(sid)])
	return sid
}

type otelIDKey struct{}

type otelIDs struct {
	trace oteltrace.TraceID
	span  oteltrace.SpanID
}

// hashedIDs hands the SDK the IDs precomputed by ExportSpan, falling back to
// random IDs for spans started elsewhere
type hashedIDs struct{}

func (hashedIDs) NewIDs(ctx context.Context) (oteltrace.TraceID, oteltrace.SpanID) {
	if ids, ok := ctx.Value(otelIDKey{}).(otelIDs); ok {
		return ids.trace, ids.span
	}
	var tid oteltrace.TraceID
	var sid oteltrace.SpanID
	_, _ = rand.Read(tid[:])
	_, _ = rand.Read(sid[:])
	return tid, sid
}

func (hashedIDs) NewSpanID(ctx context.Context, _ oteltrace.TraceID) oteltrace.SpanID {
	if ids, ok := ctx.Value(otelIDKey{}).(otelIDs); ok {
		return ids.span
	}
	var sid oteltrace.SpanID
	_, _ = rand.Read(sid[:])
	return sid
}
