// Package server assembles the sitetrace collector.
//
// It wires:
//   - the tracer, with Prometheus recording and WebSocket and optional OTLP
//     exporters
//   - the middleware stack (recovery, CORS, per-tenant rate limiting,
//     request metrics, request tracing)
//   - the collector REST API, the live span stream and /metrics
//   - gzip response compression
//
// Serve runs the HTTP server and span maintenance in one errgroup and
// shuts both down when its context ends.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer srv.Close(context.Background())
//	return srv.Run(ctx)
package server
