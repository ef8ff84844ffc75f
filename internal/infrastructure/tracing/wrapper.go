package tracing

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
)

// Correlation tags set by WithTracing
const (
	TagTenantID  = "tenant.id"
	TagUserID    = "user.id"
	TagSessionID = "session.id"
	TagRequestID = "request.id"
)

// ErrAbandoned finishes a span whose function exited without returning,
// as with runtime.Goexit
var ErrAbandoned = errors.New("traced function exited without returning")

// PanicError carries a recovered panic into the span record
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// StackTrace returns the goroutine stack captured at recovery
func (e *PanicError) StackTrace() string {
	return string(e.Stack)
}

// WithTracing runs fn inside a new span that is a child of tc.SpanID.
//
// The span is finished exactly once: with success when fn returns a nil
// error, with error otherwise. fn's result and error are returned unchanged.
// A panic in fn finishes the span with error and is then re-raised. If fn
// never returns (runtime.Goexit), the span is finished with ErrAbandoned.
//
// The ctx handed to fn carries the child trace context, so nested calls can
// pick it up with TraceFromContext.
func WithTracing[T any](
	ctx context.Context,
	t *Tracer,
	operation string,
	tc TraceContext,
	fn func(ctx context.Context, span Span, log *TracedLogger) (T, error),
) (result T, err error) {
	span := t.StartSpan(operation, tc.TraceID,
		WithParent(tc.SpanID),
		WithTags(
			attribute.String(TagTenantID, tc.TenantID),
			attribute.String(TagUserID, tc.UserID),
			attribute.String(TagSessionID, tc.SessionID),
			attribute.String(TagRequestID, tc.RequestID),
		),
	)

	child := tc
	child.SpanID = span.SpanID
	child.ParentSpanID = tc.SpanID
	child.Operation = operation
	child.Timestamp = span.StartTime

	log := NewTracedLogger(t, child)
	ctx = ContextWithTrace(ctx, child)

	returned := false
	defer func() {
		if returned {
			return
		}
		if r := recover(); r != nil {
			perr := &PanicError{Value: r, Stack: debug.Stack()}
			log.Error(operation+" panicked", attribute.String("panic", fmt.Sprint(r)))
			t.FinishSpan(span.SpanID, StatusError, perr)
			panic(r)
		}
		log.Error(operation + " abandoned")
		t.FinishSpan(span.SpanID, StatusError, ErrAbandoned)
	}()

	result, err = fn(ctx, span, log)
	returned = true
	if err != nil {
		log.Error(operation+" failed", attribute.String("error", err.Error()))
		t.FinishSpan(span.SpanID, StatusError, err)
		return result, err
	}

	log.Info(operation + " completed")
	t.FinishSpan(span.SpanID, StatusSuccess, nil)
	return result, nil
}
