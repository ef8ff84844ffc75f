package tracing

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes completed spans in the rolling window. Durations are
// in milliseconds.
type Metrics struct {
	TotalSpans      int     `json:"totalSpans"`
	ActiveSpans     int     `json:"activeSpans"`
	ErrorRate       float64 `json:"errorRate"`
	AverageDuration float64 `json:"averageDuration"`
	P95Duration     float64 `json:"p95Duration"`
	P99Duration     float64 `json:"p99Duration"`
}

// GetMetrics aggregates completed spans that started within the metrics
// window. ActiveSpans is always the current registry size.
func (t *Tracer) GetMetrics() Metrics {
	since := t.now().Add(-t.metricsWindow)

	var (
		total     int
		errs      int
		durations []float64
	)
	t.store.eachCompleted(func(s *Span) {
		if s.StartTime.Before(since) {
			return
		}
		total++
		if s.Status == StatusError {
			errs++
		}
		if s.Duration != nil {
			durations = append(durations, milliseconds(*s.Duration))
		}
	})

	m := Metrics{
		TotalSpans:  total,
		ActiveSpans: t.store.activeCount(),
	}
	if total > 0 {
		m.ErrorRate = float64(errs) / float64(total)
	}
	if len(durations) > 0 {
		sort.Float64s(durations)
		m.AverageDuration = stat.Mean(durations, nil)
		m.P95Duration = nearestRank(durations, 0.95)
		m.P99Duration = nearestRank(durations, 0.99)
	}
	return m
}

// nearestRank picks sorted[floor(n*p)], clamped to the last element
func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	i := int(math.Floor(float64(len(sorted)) * p))
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
