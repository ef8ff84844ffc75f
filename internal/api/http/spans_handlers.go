package http

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/sitetrace/backend/internal/shared/validation"
	"github.com/gin-gonic/gin"
)

// TraceContextRequest asks for a new trace context
type TraceContextRequest struct {
	Operation    string `json:"operation" binding:"required"`
	SessionID    string `json:"sessionId"`
	TenantID     string `json:"tenantId"`
	UserID       string `json:"userId"`
	TraceID      string `json:"traceId"`
	ParentSpanID string `json:"parentSpanId"`
}

// StartSpanRequest opens a span
type StartSpanRequest struct {
	Operation    string         `json:"operation" binding:"required"`
	TraceID      string         `json:"traceId" binding:"required"`
	ParentSpanID string         `json:"parentSpanId"`
	Tags         map[string]any `json:"tags"`
}

// FinishSpanRequest closes a span. An error without a status implies
// status "error".
type FinishSpanRequest struct {
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
		Stack   string `json:"stack"`
	} `json:"error"`
}

// AddLogRequest appends a log entry to a span
type AddLogRequest struct {
	Level   string         `json:"level"`
	Message string         `json:"message" binding:"required"`
	Data    map[string]any `json:"data"`
}

// AddTagsRequest merges tags into a span
type AddTagsRequest struct {
	Tags map[string]any `json:"tags" binding:"required"`
}

// CreateTraceContext handles POST /api/traces/context
func (h *Handlers) CreateTraceContext(c *gin.Context) {
	var req TraceContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.First(
		validation.String(req.Operation, "operation", validation.MaxNameLength, true),
		validation.ID(req.TraceID, "traceId", false),
		validation.ID(req.ParentSpanID, "parentSpanId", false),
		validation.String(req.SessionID, "sessionId", validation.MaxIDLength, false),
		validation.String(req.TenantID, "tenantId", validation.MaxIDLength, false),
		validation.String(req.UserID, "userId", validation.MaxIDLength, false),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tc := h.tracer.CreateTraceContext(req.Operation, req.SessionID, req.TenantID, req.UserID,
		tracing.WithTraceID(req.TraceID),
		tracing.WithParentSpan(req.ParentSpanID),
	)
	c.JSON(http.StatusOK, tc)
}

// StartSpan handles POST /api/spans
func (h *Handlers) StartSpan(c *gin.Context) {
	var req StartSpanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.First(
		validation.String(req.Operation, "operation", validation.MaxNameLength, true),
		validation.ID(req.TraceID, "traceId", true),
		validation.ID(req.ParentSpanID, "parentSpanId", false),
		validation.Attributes(req.Tags, "tags"),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span := h.tracer.StartSpan(req.Operation, req.TraceID,
		tracing.WithParent(req.ParentSpanID),
		tracing.WithTags(tracing.AttributesFromMap(req.Tags)...),
	)
	c.JSON(http.StatusCreated, tracing.ExportSpan(span))
}

// GetSpan handles GET /api/spans/:id. Only active spans are returned.
func (h *Handlers) GetSpan(c *gin.Context) {
	span, ok := h.tracer.GetActiveSpan(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "span not found"})
		return
	}
	c.JSON(http.StatusOK, tracing.ExportSpan(span))
}

// FinishSpan handles POST /api/spans/:id/finish. Finishing an unknown span
// is not an error.
func (h *Handlers) FinishSpan(c *gin.Context) {
	var req FinishSpanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	status := tracing.StatusSuccess
	if req.Status != "" {
		parsed, err := tracing.ParseStatus(req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if parsed == tracing.StatusPending {
			c.JSON(http.StatusBadRequest, gin.H{"error": "finish status must be success or error"})
			return
		}
		status = parsed
	}

	var spanErr error
	if req.Error != nil {
		if err := validation.First(
			validation.String(req.Error.Message, "error.message", validation.MaxMessageLength, false),
			validation.String(req.Error.Stack, "error.stack", validation.MaxStackLength, false),
		); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		spanErr = &tracing.SpanError{Message: req.Error.Message, Stack: req.Error.Stack}
		if req.Status == "" {
			status = tracing.StatusError
		}
	}

	h.tracer.FinishSpan(c.Param("id"), status, spanErr)
	c.Status(http.StatusNoContent)
}

// AddLog handles POST /api/spans/:id/logs
func (h *Handlers) AddLog(c *gin.Context) {
	var req AddLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.First(
		validation.String(req.Message, "message", validation.MaxMessageLength, true),
		validation.Attributes(req.Data, "data"),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	level, err := tracing.ParseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.tracer.AddLog(c.Param("id"), level, h.sanitizer.Sanitize(req.Message), tracing.AttributesFromMap(req.Data)...)
	c.Status(http.StatusNoContent)
}

// AddTags handles POST /api/spans/:id/tags
func (h *Handlers) AddTags(c *gin.Context) {
	var req AddTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.Attributes(req.Tags, "tags"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.tracer.AddTags(c.Param("id"), tracing.AttributesFromMap(req.Tags)...)
	c.Status(http.StatusNoContent)
}

// GetTraceSpans handles GET /api/traces/:id/spans
func (h *Handlers) GetTraceSpans(c *gin.Context) {
	traceID := c.Param("id")
	spans := h.tracer.GetTraceSpans(traceID)

	out := make([]tracing.SpanExport, 0, len(spans))
	for _, s := range spans {
		out = append(out, tracing.ExportSpan(s))
	}
	c.JSON(http.StatusOK, gin.H{
		"traceId": traceID,
		"spans":   out,
	})
}

// ExportTrace handles GET /api/traces/:id/export
func (h *Handlers) ExportTrace(c *gin.Context) {
	export, err := h.tracer.ExportTrace(c.Param("id"))
	if errors.Is(err, tracing.ErrTraceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, err := export.JSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// GetMetrics handles GET /api/metrics/spans
func (h *Handlers) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracer.GetMetrics())
}
