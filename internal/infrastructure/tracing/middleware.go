package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/sitetrace/backend/internal/shared/validation"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Propagation headers
const (
	HeaderTraceID   = "X-Trace-ID"
	HeaderSpanID    = "X-Span-ID"
	HeaderRequestID = "X-Request-ID"
	HeaderTenantID  = "X-Tenant-ID"
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
)

// Headers lists every propagation header, for CORS configuration
var Headers = []string{
	HeaderTraceID,
	HeaderSpanID,
	HeaderRequestID,
	HeaderTenantID,
	HeaderUserID,
	HeaderSessionID,
}

// ExtractTraceContext builds a trace context from propagation headers.
// The incoming span ID becomes the context's SpanID so spans opened with
// WithTracing become its children. get is typically http.Header.Get.
//
// Headers failing the collector's input bounds are ignored: a bad trace or
// request ID is replaced by a fresh one, a bad span ID starts a root span.
func (t *Tracer) ExtractTraceContext(operation string, get func(string) string) TraceContext {
	tc := t.CreateTraceContext(operation,
		t.header(get, HeaderSessionID, false),
		t.header(get, HeaderTenantID, false),
		t.header(get, HeaderUserID, false),
		WithTraceID(t.header(get, HeaderTraceID, true)),
	)
	tc.SpanID = t.header(get, HeaderSpanID, true)
	if rid := t.header(get, HeaderRequestID, true); rid != "" {
		tc.RequestID = rid
	}
	return tc
}

// header reads one propagation header, returning "" when it is out of
// bounds. isID applies the trace/span ID charset.
func (t *Tracer) header(get func(string) string, name string, isID bool) string {
	v := get(name)
	if v == "" {
		return ""
	}

	var err error
	if isID {
		err = validation.ID(v, name, false)
	} else {
		err = validation.String(v, name, validation.MaxIDLength, false)
	}
	if err != nil {
		t.logger.Debug("ignoring propagation header", zap.String("header", name), zap.Error(err))
		return ""
	}
	return v
}

// InjectTraceContext writes tc into headers through set
func InjectTraceContext(tc TraceContext, set func(key, value string)) {
	pairs := [][2]string{
		{HeaderTraceID, tc.TraceID},
		{HeaderSpanID, tc.SpanID},
		{HeaderRequestID, tc.RequestID},
		{HeaderTenantID, tc.TenantID},
		{HeaderUserID, tc.UserID},
		{HeaderSessionID, tc.SessionID},
	}
	for _, p := range pairs {
		if p[1] != "" {
			set(p[0], p[1])
		}
	}
}

// HTTPMiddleware wraps every request in a span
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		operation := c.Request.Method + " " + route

		tc := tracer.ExtractTraceContext(operation, c.GetHeader)

		_, _ = WithTracing(c.Request.Context(), tracer, operation, tc,
			func(ctx context.Context, span Span, log *TracedLogger) (struct{}, error) {
				log.Tag(
					attribute.String(TagSpanKind, "server"),
					attribute.String("http.method", c.Request.Method),
					attribute.String("http.route", route),
					attribute.String("http.url", c.Request.URL.String()),
				)

				c.Request = c.Request.WithContext(ctx)
				c.Header(HeaderTraceID, span.TraceID)
				c.Header(HeaderSpanID, span.SpanID)
				c.Header(HeaderRequestID, tc.RequestID)

				c.Next()

				code := c.Writer.Status()
				log.Tag(attribute.Int("http.status_code", code))

				if len(c.Errors) > 0 {
					return struct{}{}, c.Errors.Last()
				}
				if code >= http.StatusInternalServerError {
					return struct{}{}, fmt.Errorf("http status %d", code)
				}
				return struct{}{}, nil
			})
	}
}

// GRPCUnaryInterceptor creates a gRPC server interceptor that wraps each
// call in a span
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		tc := tracer.ExtractTraceContext(info.FullMethod, func(key string) string {
			if vals := md.Get(key); len(vals) > 0 {
				return vals[0]
			}
			return ""
		})

		return WithTracing(ctx, tracer, info.FullMethod, tc,
			func(ctx context.Context, span Span, log *TracedLogger) (interface{}, error) {
				log.Tag(
					attribute.String(TagSpanKind, "server"),
					attribute.String("rpc.system", "grpc"),
					attribute.String("rpc.method", info.FullMethod),
				)

				resp, err := handler(ctx, req)
				log.Tag(attribute.String("rpc.grpc.status_code", status.Code(err).String()))
				return resp, err
			})
	}
}

// GRPCClientInterceptor creates a gRPC client interceptor that opens a
// client span and propagates it through outgoing metadata
func GRPCClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		tc, ok := TraceFromContext(ctx)
		if !ok {
			tc = tracer.CreateTraceContext(method, "", "", "")
			tc.SpanID = ""
		}

		_, err := WithTracing(ctx, tracer, method, tc,
			func(ctx context.Context, span Span, log *TracedLogger) (struct{}, error) {
				log.Tag(
					attribute.String(TagSpanKind, "client"),
					attribute.String("rpc.system", "grpc"),
					attribute.String("rpc.method", method),
				)

				outgoing, _ := TraceFromContext(ctx)
				md := metadata.MD{}
				InjectTraceContext(outgoing, func(key, value string) {
					md.Set(key, value)
				})
				ctx = metadata.NewOutgoingContext(ctx, md)

				return struct{}{}, invoker(ctx, method, req, reply, cc, opts...)
			})
		return err
	}
}
