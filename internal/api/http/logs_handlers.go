package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/sitetrace/backend/internal/shared/validation"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxLogBatch bounds the entries accepted in one request
const maxLogBatch = 500

// UILogEntry represents a log entry from the UI
type UILogEntry struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
	TraceID   string         `json:"traceId"`
	SpanID    string         `json:"spanId"`
	TenantID  string         `json:"tenantId"`
	UserID    string         `json:"userId"`
}

// UILogStreamRequest represents a batch of logs from the UI
type UILogStreamRequest struct {
	Source    string       `json:"source"`    // "ui"
	Entries   []UILogEntry `json:"entries"`   // Log entries
	Timestamp int64        `json:"timestamp"` // Request timestamp
}

// StreamLogs handles a batch of logs from the UI. Entries naming an active
// span are recorded on it; the rest go to the collector's own log.
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req UILogStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log request format"})
		return
	}

	// Validate source
	if req.Source != "ui" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log source"})
		return
	}

	// Validate entries
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No log entries provided"})
		return
	}
	if len(req.Entries) > maxLogBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many log entries"})
		return
	}

	processed, attached := 0, 0
	for _, entry := range req.Entries {
		if err := validateUILogEntry(entry); err != nil {
			h.logger.Debug("Dropping UI log entry", zap.String("ui_log_id", entry.ID), zap.Error(err))
			continue
		}
		processed++
		if h.processUILogEntry(entry) {
			attached++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"entries_received":  len(req.Entries),
		"entries_processed": processed,
		"entries_attached":  attached,
		"timestamp":         time.Now().Unix(),
	})
}

func validateUILogEntry(entry UILogEntry) error {
	return validation.First(
		validation.String(entry.Message, "message", validation.MaxMessageLength, true),
		validation.ID(entry.SpanID, "spanId", false),
		validation.ID(entry.TraceID, "traceId", false),
		validation.Attributes(entry.Context, "context"),
	)
}

// processUILogEntry records one entry and reports whether it was attached
// to a span
func (h *Handlers) processUILogEntry(entry UILogEntry) bool {
	level := uiLevel(entry.Level)
	message := h.sanitizer.Sanitize(entry.Message)
	if h.metrics != nil {
		h.metrics.RecordUILog(level.String())
	}

	if entry.SpanID != "" {
		data := tracing.AttributesFromMap(entry.Context)
		if entry.ID != "" {
			data = append(data, attribute.String("ui_log_id", entry.ID))
		}
		if h.tracer.AddLog(entry.SpanID, level, message, data...) {
			return true
		}
	}

	// Create structured fields from context
	fields := make([]zap.Field, 0, len(entry.Context)+6)
	fields = append(fields,
		zap.String("ui_log_id", entry.ID),
		zap.String("source", "ui"),
		zap.String("ui_timestamp", entry.Timestamp),
	)
	if entry.TraceID != "" {
		fields = append(fields, zap.String("trace_id", entry.TraceID))
	}
	if entry.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", entry.TenantID))
	}
	if entry.UserID != "" {
		fields = append(fields, zap.String("user_id", entry.UserID))
	}
	for _, kv := range tracing.AttributesFromMap(entry.Context) {
		fields = append(fields, zap.Any(string(kv.Key), kv.Value.AsInterface()))
	}

	if ce := h.logger.Check(level, message); ce != nil {
		ce.Write(fields...)
	}
	return false
}

// uiLevel maps UI level names onto the four span log levels
func uiLevel(s string) zapcore.Level {
	s = strings.ToLower(s)
	if s == "verbose" || s == "trace" {
		return zapcore.DebugLevel
	}
	level, err := tracing.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
