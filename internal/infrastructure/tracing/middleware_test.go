package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func setupTestRouter(tracer *Tracer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	return router
}

func TestHTTPMiddlewareStartsRootSpan(t *testing.T) {
	tracer, _, _ := newTestTracer()
	router := setupTestRouter(tracer)

	var seen TraceContext
	router.GET("/projects/:id", func(c *gin.Context) {
		seen, _ = TraceFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	req := httptest.NewRequest(http.MethodGet, "/projects/42", nil)
	req.Header.Set(HeaderTenantID, "acme")
	req.Header.Set(HeaderUserID, "user-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	traceID := w.Header().Get(HeaderTraceID)
	spanID := w.Header().Get(HeaderSpanID)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, spanID, seen.SpanID)
	assert.Equal(t, "acme", seen.TenantID)

	spans := tracer.GetTraceSpans(traceID)
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /projects/:id", span.Operation)
	assert.Empty(t, span.ParentSpanID)
	assert.Equal(t, StatusSuccess, span.Status)
	assert.Equal(t, "server", span.Tags[TagSpanKind].AsString())
	assert.Equal(t, int64(200), span.Tags["http.status_code"].AsInt64())
	assert.Equal(t, "acme", span.Tags[TagTenantID].AsString())
}

func TestHTTPMiddlewareContinuesIncomingTrace(t *testing.T) {
	tracer, _, _ := newTestTracer()
	router := setupTestRouter(tracer)
	router.GET("/equipment", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/equipment", nil)
	req.Header.Set(HeaderTraceID, "trace_ui_1")
	req.Header.Set(HeaderSpanID, "span_ui_1")
	req.Header.Set(HeaderRequestID, "req_ui_1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "trace_ui_1", w.Header().Get(HeaderTraceID))
	assert.Equal(t, "req_ui_1", w.Header().Get(HeaderRequestID))

	spans := tracer.GetTraceSpans("trace_ui_1")
	require.Len(t, spans, 1)
	assert.Equal(t, "span_ui_1", spans[0].ParentSpanID)
	assert.Equal(t, "req_ui_1", spans[0].Tags[TagRequestID].AsString())
}

func TestHTTPMiddlewareIgnoresOutOfBoundsHeaders(t *testing.T) {
	tracer, _, logs := newTestTracer()
	router := setupTestRouter(tracer)

	var seen TraceContext
	router.GET("/equipment", func(c *gin.Context) {
		seen, _ = TraceFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/equipment", nil)
	req.Header.Set(HeaderTraceID, "trace 1; drop")
	req.Header.Set(HeaderSpanID, "../span")
	req.Header.Set(HeaderRequestID, strings.Repeat("r", 200))
	req.Header.Set(HeaderTenantID, strings.Repeat("t", 200))
	req.Header.Set(HeaderUserID, "user-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	traceID := w.Header().Get(HeaderTraceID)
	assert.True(t, strings.HasPrefix(traceID, "trace_"), traceID)
	assert.True(t, strings.HasPrefix(w.Header().Get(HeaderRequestID), "req_"))
	assert.Empty(t, seen.TenantID)
	assert.Equal(t, "user-7", seen.UserID)

	spans := tracer.GetTraceSpans(traceID)
	require.Len(t, spans, 1)
	assert.Empty(t, spans[0].ParentSpanID)
	assert.Equal(t, 4, logs.FilterMessage("ignoring propagation header").Len())
}

func TestHTTPMiddlewareMarksServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
		want    Status
		message string
	}{
		{
			name:    "client error is success",
			handler: func(c *gin.Context) { c.Status(http.StatusNotFound) },
			want:    StatusSuccess,
		},
		{
			name:    "server error",
			handler: func(c *gin.Context) { c.Status(http.StatusBadGateway) },
			want:    StatusError,
			message: "http status 502",
		},
		{
			name: "gin error",
			handler: func(c *gin.Context) {
				_ = c.Error(errors.New("payroll export failed"))
				c.Status(http.StatusOK)
			},
			want:    StatusError,
			message: "payroll export failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, _, _ := newTestTracer()
			router := setupTestRouter(tracer)
			router.GET("/hr", tt.handler)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hr", nil))

			spans := tracer.GetTraceSpans(w.Header().Get(HeaderTraceID))
			require.Len(t, spans, 1)
			assert.Equal(t, tt.want, spans[0].Status)
			if tt.message != "" {
				require.NotNil(t, spans[0].Error)
				assert.Equal(t, tt.message, spans[0].Error.Message)
			}
		})
	}
}

func TestGRPCUnaryInterceptor(t *testing.T) {
	tracer, _, _ := newTestTracer()
	interceptor := GRPCUnaryInterceptor(tracer)

	md := metadata.Pairs("x-trace-id", "trace_grpc", "x-span-id", "span_caller", "x-tenant-id", "acme")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/projects.v1.Projects/Get"}

	resp, err := interceptor(ctx, "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		tc, ok := TraceFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, "trace_grpc", tc.TraceID)
		return "resp", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)

	_, err = interceptor(ctx, "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "no such project")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	spans := tracer.GetTraceSpans("trace_grpc")
	require.Len(t, spans, 2)
	assert.Equal(t, "span_caller", spans[0].ParentSpanID)
	assert.Equal(t, StatusSuccess, spans[0].Status)
	assert.Equal(t, "acme", spans[0].Tags[TagTenantID].AsString())
	assert.Equal(t, StatusError, spans[1].Status)
	assert.Equal(t, "NotFound", spans[1].Tags["rpc.grpc.status_code"].AsString())
}

func TestGRPCClientInterceptorInjectsMetadata(t *testing.T) {
	tracer, _, _ := newTestTracer()
	interceptor := GRPCClientInterceptor(tracer)

	parent := tracer.CreateTraceContext("sync", "sess-1", "acme", "user-7")
	ctx := ContextWithTrace(context.Background(), parent)

	var sent metadata.MD
	err := interceptor(ctx, "/equipment.v1.Fleet/Sync", nil, nil, nil,
		func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			sent, _ = metadata.FromOutgoingContext(ctx)
			return nil
		})
	require.NoError(t, err)

	spans := tracer.GetTraceSpans(parent.TraceID)
	require.Len(t, spans, 1)
	client := spans[0]
	assert.Equal(t, parent.SpanID, client.ParentSpanID)
	assert.Equal(t, "client", client.Tags[TagSpanKind].AsString())

	assert.Equal(t, []string{parent.TraceID}, sent.Get("x-trace-id"))
	assert.Equal(t, []string{client.SpanID}, sent.Get("x-span-id"))
	assert.Equal(t, []string{"acme"}, sent.Get("x-tenant-id"))
}
