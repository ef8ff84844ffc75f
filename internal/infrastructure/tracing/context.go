package tracing

import "context"

// ContextOption configures CreateTraceContext
type ContextOption func(*TraceContext)

// WithTraceID continues an existing trace instead of starting a new one
func WithTraceID(traceID string) ContextOption {
	return func(tc *TraceContext) {
		if traceID != "" {
			tc.TraceID = traceID
		}
	}
}

// WithParentSpan records the span this context descends from
func WithParentSpan(spanID string) ContextOption {
	return func(tc *TraceContext) { tc.ParentSpanID = spanID }
}

// CreateTraceContext builds the identifying context for a new logical
// operation. Span and request IDs are always fresh; the trace ID is fresh
// unless WithTraceID supplies one.
func (t *Tracer) CreateTraceContext(operation, sessionID, tenantID, userID string, opts ...ContextOption) TraceContext {
	tc := TraceContext{
		SpanID:    t.ids.NewSpanID().String(),
		RequestID: t.ids.NewRequestID().String(),
		SessionID: sessionID,
		TenantID:  tenantID,
		UserID:    userID,
		Timestamp: t.now(),
		Operation: operation,
	}
	for _, opt := range opts {
		opt(&tc)
	}
	if tc.TraceID == "" {
		tc.TraceID = t.ids.NewTraceID().String()
	}
	return tc
}

type traceContextKey struct{}

// ContextWithTrace returns a copy of ctx carrying tc
func ContextWithTrace(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// TraceFromContext returns the trace context stored in ctx, if any
func TraceFromContext(ctx context.Context) (TraceContext, bool) {
	tc, ok := ctx.Value(traceContextKey{}).(TraceContext)
	return tc, ok
}
