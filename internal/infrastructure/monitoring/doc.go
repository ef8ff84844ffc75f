/*
Package monitoring provides Prometheus metrics for the collector.

# Overview

Metrics tracks HTTP requests, span lifecycle events, UI log volume and
WebSocket connections. It implements tracing.Recorder, so a tracer built
with tracing.WithRecorder(metrics) reports every started, finished and
evicted span.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	tracer := tracing.New("sitetrace", logger, tracing.WithRecorder(metrics))

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
