package tracing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetMetricsEmpty(t *testing.T) {
	tracer, _, _ := newTestTracer()

	tracer.StartSpan("still-running", "trace-1")

	assert.Equal(t, Metrics{ActiveSpans: 1}, tracer.GetMetrics())
}

func TestGetMetricsAggregates(t *testing.T) {
	tracer, clock, _ := newTestTracer()

	// Durations 1ms..100ms, every 20th span fails
	for i := 1; i <= 100; i++ {
		status := StatusSuccess
		if i%20 == 0 {
			status = StatusError
		}
		finishAfter(tracer, clock, "trace-1", time.Duration(i)*time.Millisecond, status)
	}
	tracer.StartSpan("pending", "trace-1")

	m := tracer.GetMetrics()

	assert.Equal(t, 100, m.TotalSpans)
	assert.Equal(t, 1, m.ActiveSpans)
	assert.InDelta(t, 0.05, m.ErrorRate, 1e-9)
	assert.InDelta(t, 50.5, m.AverageDuration, 1e-9)
	assert.Equal(t, 96.0, m.P95Duration)
	assert.Equal(t, 100.0, m.P99Duration)
}

func TestGetMetricsRollingWindow(t *testing.T) {
	tracer, clock, _ := newTestTracer(WithMetricsWindow(time.Hour))

	finishAfter(tracer, clock, "old", 10*time.Millisecond, StatusError)
	clock.Advance(2 * time.Hour)
	finishAfter(tracer, clock, "new", 30*time.Millisecond, StatusSuccess)

	m := tracer.GetMetrics()
	assert.Equal(t, 1, m.TotalSpans)
	assert.Zero(t, m.ErrorRate)
	assert.Equal(t, 30.0, m.AverageDuration)
	assert.Equal(t, 30.0, m.P95Duration)
	assert.Equal(t, 30.0, m.P99Duration)
}

func TestNearestRank(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty", nil, 0.95, 0},
		{"single", []float64{7}, 0.99, 7},
		{"two values p95", []float64{1, 2}, 0.95, 2},
		{"ten values p95", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.95, 10},
		{"ten values p50", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.5, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nearestRank(tt.sorted, tt.p))
		})
	}
}
