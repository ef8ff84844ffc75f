// Package logging provides structured logging using uber/zap.
//
// Three output formats are supported:
//   - json: machine-parseable production output
//   - console: colored output for local development
//   - line: single-line "<ISO timestamp> <LEVEL> <message>" output used by
//     the traced logger, which prefixes messages with trace correlation
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Error("Failed to connect", zap.Error(err))
package logging
