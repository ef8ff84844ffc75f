// Package middleware provides the collector's gin middleware: CORS that
// admits the trace propagation headers and per-tenant rate limiting.
package middleware
