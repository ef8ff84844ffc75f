package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Subscribers reports how many live stream clients are connected
type Subscribers interface {
	ClientCount() int
}

// Handlers contains all collector HTTP handlers
type Handlers struct {
	tracer    *tracing.Tracer
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	stream    Subscribers
	sanitizer *bluemonday.Policy
	started   time.Time
}

// NewHandlers creates a new handler set. metrics and stream may be nil.
func NewHandlers(tracer *tracing.Tracer, logger *zap.Logger, metrics *monitoring.Metrics, stream Subscribers) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		tracer:    tracer,
		logger:    logger,
		metrics:   metrics,
		stream:    stream,
		sanitizer: bluemonday.StrictPolicy(),
		started:   time.Now(),
	}
}

// Register mounts the collector API on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.POST("/traces/context", h.CreateTraceContext)
	api.GET("/traces/:id/spans", h.GetTraceSpans)
	api.GET("/traces/:id/export", h.ExportTrace)

	api.POST("/spans", h.StartSpan)
	api.GET("/spans/:id", h.GetSpan)
	api.POST("/spans/:id/finish", h.FinishSpan)
	api.POST("/spans/:id/logs", h.AddLog)
	api.POST("/spans/:id/tags", h.AddTags)

	api.GET("/metrics/spans", h.GetMetrics)
	api.POST("/logs", h.StreamLogs)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":          "healthy",
		"service":         h.tracer.Service(),
		"uptime_seconds":  time.Since(h.started).Seconds(),
		"active_spans":    h.tracer.ActiveCount(),
		"completed_spans": h.tracer.CompletedCount(),
	}
	if h.stream != nil {
		body["stream_clients"] = h.stream.ClientCount()
	}
	if h.metrics != nil {
		snap := h.metrics.Snapshot()
		body["http"] = gin.H{
			"total_requests":     snap.TotalRequests,
			"total_errors":       snap.TotalErrors,
			"average_latency_ms": float64(h.metrics.AverageLatency()) / float64(time.Millisecond),
		}
	}
	c.JSON(http.StatusOK, body)
}
