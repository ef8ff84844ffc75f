package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Span metrics
	SpansStarted  *prometheus.CounterVec
	SpansFinished *prometheus.CounterVec
	SpanDuration  *prometheus.HistogramVec
	SpanEvictions *prometheus.CounterVec
	SpansActive   prometheus.Gauge

	// UI log metrics
	UILogs *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for the health endpoint
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds running HTTP totals
type Snapshot struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalErrors   int64   `json:"totalErrors"`
	TotalDuration float64 `json:"-"` // sum of all request durations
	RequestCount  int64   `json:"-"` // count for averaging
}

// NewMetrics creates a metrics collector registered with reg. A nil reg
// leaves the collectors unregistered, which tests use to avoid clashes.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	// HTTP metrics
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetrace_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitetrace_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.RequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitetrace_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)
	m.ResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitetrace_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)

	// Span metrics
	m.SpansStarted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetrace_spans_started_total",
			Help: "Total number of spans started",
		},
		[]string{"operation"},
	)
	m.SpansFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetrace_spans_finished_total",
			Help: "Total number of spans finished",
		},
		[]string{"operation", "status"},
	)
	m.SpanDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitetrace_span_duration_seconds",
			Help:    "Span duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
	m.SpanEvictions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetrace_spans_evicted_total",
			Help: "Total number of completed spans dropped from history",
		},
		[]string{"reason"},
	)
	m.SpansActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitetrace_spans_active",
			Help: "Number of spans started but not finished",
		},
	)

	// UI log metrics
	m.UILogs = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetrace_ui_logs_total",
			Help: "Total number of log entries reported by the UI",
		},
		[]string{"level"},
	)

	// WebSocket metrics
	m.WSConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitetrace_ws_connections",
			Help: "Number of active WebSocket connections",
		},
	)
	m.WSMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitetrace_ws_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction", "type"},
	)

	// System metrics
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sitetrace_uptime_seconds",
			Help: "Collector uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// SpanStarted records a started span
func (m *Metrics) SpanStarted(operation string) {
	m.SpansStarted.WithLabelValues(operation).Inc()
}

// SpanFinished records a finished span and its duration
func (m *Metrics) SpanFinished(operation, status string, duration time.Duration) {
	m.SpansFinished.WithLabelValues(operation, status).Inc()
	m.SpanDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SpansEvicted records completed spans dropped from history
func (m *Metrics) SpansEvicted(reason string, n int) {
	if n <= 0 {
		return
	}
	m.SpanEvictions.WithLabelValues(reason).Add(float64(n))
}

// SetActiveSpans sets the number of active spans
func (m *Metrics) SetActiveSpans(n int) {
	m.SpansActive.Set(float64(n))
}

// RecordUILog records a log entry reported by the UI
func (m *Metrics) RecordUILog(level string) {
	m.UILogs.WithLabelValues(level).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns the running HTTP totals
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageLatency returns the mean HTTP request duration
func (m *Metrics) AverageLatency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot.RequestCount == 0 {
		return 0
	}
	return time.Duration(m.snapshot.TotalDuration / float64(m.snapshot.RequestCount) * float64(time.Second))
}

// UptimeSince returns how long the collector has been running
func (m *Metrics) UptimeSince() time.Duration {
	return time.Since(m.startTime)
}
