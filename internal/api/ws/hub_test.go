package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func setupHub(t *testing.T) (*Hub, *httptest.Server, *monitoring.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics(nil)
	hub := NewHub(zap.NewNop(), metrics)

	router := gin.New()
	router.GET("/api/stream", hub.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv, metrics
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, "system", welcome.Type)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubStreamsFinishedSpans(t *testing.T) {
	hub, srv, metrics := setupHub(t)
	conn := dial(t, srv, "")
	require.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WSConnections))

	tracer := tracing.New("portal", zap.NewNop(), tracing.WithExporter(hub))
	span := tracer.StartSpan("load-projects", "trace-1")
	tracer.FinishSpan(span.SpanID, tracing.StatusSuccess, nil)

	msg := readMessage(t, conn)
	assert.Equal(t, "span", msg.Type)
	require.NotNil(t, msg.Span)
	assert.Equal(t, span.SpanID, msg.Span.SpanID)
	assert.Equal(t, "load-projects", msg.Span.Operation)
	assert.Equal(t, tracing.StatusSuccess, msg.Span.Status)
	require.NotNil(t, msg.Span.EndTime)
}

func TestHubFilters(t *testing.T) {
	hub, srv, _ := setupHub(t)
	byTrace := dial(t, srv, "?traceId=trace-b")
	byTenant := dial(t, srv, "?tenantId=acme")

	tracer := tracing.New("portal", zap.NewNop(), tracing.WithExporter(hub))
	finish := func(traceID, tenant string) string {
		s := tracer.StartSpan("op", traceID, tracing.WithTags(attribute.String(tracing.TagTenantID, tenant)))
		tracer.FinishSpan(s.SpanID, tracing.StatusSuccess, nil)
		return s.SpanID
	}

	finish("trace-a", "globex")
	acme := finish("trace-a", "acme")
	traceB := finish("trace-b", "globex")

	assert.Equal(t, traceB, readMessage(t, byTrace).Span.SpanID)
	assert.Equal(t, acme, readMessage(t, byTenant).Span.SpanID)
}

func TestHubPingPong(t *testing.T) {
	_, srv, metrics := setupHub(t)
	conn := dial(t, srv, "")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown message type", msg.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "invalid message", readMessage(t, conn).Message)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.WSMessages.WithLabelValues("in", "text")))
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub, srv, metrics := setupHub(t)
	conn := dial(t, srv, "")

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WSConnections))

	// New subscribers are turned away
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHubWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	tracer := tracing.New("portal", zap.NewNop(), tracing.WithExporter(hub))
	s := tracer.StartSpan("op", "trace-1")
	_, ok := tracer.FinishSpan(s.SpanID, tracing.StatusSuccess, nil)
	assert.True(t, ok)
	assert.Zero(t, hub.ClientCount())
}
