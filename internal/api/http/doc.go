// Package http provides the collector's REST handlers.
//
// The SPA opens and closes spans through these endpoints, attaches logs and
// tags, and reads back traces and rolling metrics. Finishing, logging to or
// tagging an unknown span answers 204 like any other call; the tracer logs
// the miss.
package http
