// Package config provides 12-factor configuration management for the
// trace collector.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - Tracing: Span history bound, retention, maintenance cadence
//   - OTel: Forwarding of finished spans to an OTLP collector
//   - RateLimit: Per-tenant rate limiting configuration
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV, LOG_FORMAT
//   - TRACE_SERVICE, TRACE_HISTORY_LIMIT, TRACE_MAX_AGE,
//     TRACE_CLEANUP_INTERVAL, TRACE_METRICS_WINDOW, TRACE_SPAN_TIMEOUT
//   - OTEL_FORWARD_ENABLED
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
