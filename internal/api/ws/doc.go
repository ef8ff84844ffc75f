// Package ws streams finished spans to WebSocket subscribers.
//
// Hub implements tracing.Exporter; register it with tracing.WithExporter and
// mount HandleConnection on a GET route:
//
//	hub := ws.NewHub(logger, metrics)
//	tracer := tracing.New("sitetrace", logger, tracing.WithExporter(hub))
//	router.GET("/api/stream", hub.HandleConnection)
//
// Message Types (Server → Client):
//   - system: connection established
//   - span: a finished span, in export form
//   - pong: reply to ping
//   - error: the client sent something the hub does not understand
//
// Message Types (Client → Server):
//   - ping: keep-alive ping
//
// The traceId and tenantId query parameters restrict the feed to one trace or
// one tenant. A subscriber that falls behind loses spans instead of slowing
// the tracer.
package ws
