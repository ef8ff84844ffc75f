/*
Package tracing provides in-process request tracing and correlation.

# Overview

A Tracer owns a span store: a registry of active spans keyed by span ID and
a bounded, FIFO-evicted history of completed spans (1000 by default). All
mutation goes through the lifecycle API, and callers only ever see
snapshots.

# Span Lifecycle

	pending --FinishSpan(success)--> success
	pending --FinishSpan(error)----> error

Finishing, logging to, or tagging a span that is no longer active is a
no-op. Finish and log emit a warning; tagging is silent.

# Usage

	tracer := tracing.New("portal", logger)

	tc := tracer.CreateTraceContext("save-invoice", sessionID, tenantID, userID)
	invoice, err := tracing.WithTracing(ctx, tracer, "save-invoice", tc,
		func(ctx context.Context, span tracing.Span, log *tracing.TracedLogger) (*Invoice, error) {
			log.Info("writing invoice", attribute.Int("lines", len(lines)))
			return repo.Save(ctx, lines)
		})

	// HTTP and gRPC propagation
	router.Use(tracing.HTTPMiddleware(tracer))
	server := grpc.NewServer(grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)))

	// Background retention
	go tracer.RunMaintenance(ctx, time.Hour, 24*time.Hour)

# Propagation

Trace context travels in the X-Trace-ID, X-Span-ID, X-Request-ID,
X-Tenant-ID, X-User-ID and X-Session-ID headers, or the lowercase
equivalents in gRPC metadata.

# Export

ExportTrace serializes a trace for the UI. Finished spans can also be pushed
to Exporters, such as the OTLP forwarder or a WebSocket hub.
*/
package tracing
