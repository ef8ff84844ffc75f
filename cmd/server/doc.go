// Package main runs the sitetrace collector.
//
// The collector accepts spans and UI logs from the portal SPA, keeps them in
// memory, serves trace exports and aggregate metrics, and streams finished
// spans to WebSocket subscribers.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server --port 8000 --log-format json
//
//	# Development mode (colored logs, debug level)
//	./server --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
