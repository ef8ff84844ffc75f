package tracing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Maintenance defaults
const (
	DefaultMaxAge          = 24 * time.Hour
	DefaultCleanupInterval = time.Hour
)

// ErrSpanTimeout is recorded on active spans failed by maintenance
var ErrSpanTimeout = errors.New("span timed out")

// Cleanup removes completed spans that started more than maxAge ago and
// returns how many were removed
func (t *Tracer) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	removed := t.store.prune(t.now().Add(-maxAge))
	if removed > 0 {
		t.logger.Info("expired spans removed",
			zap.Int("count", removed),
			zap.Duration("max_age", maxAge),
		)
		if t.recorder != nil {
			t.recorder.SpansEvicted("expired", removed)
		}
	}
	return removed
}

// FailStaleSpans finishes, with ErrSpanTimeout, every active span whose age
// has reached the configured span timeout. It is a no-op when no timeout is
// set.
func (t *Tracer) FailStaleSpans() int {
	if t.spanTimeout <= 0 {
		return 0
	}

	failed := 0
	for _, spanID := range t.store.startedBy(t.now().Add(-t.spanTimeout)) {
		// The span may have finished since the scan; FinishSpan tolerates that
		if _, ok := t.FinishSpan(spanID, StatusError, ErrSpanTimeout); ok {
			failed++
		}
	}
	if failed > 0 {
		t.logger.Warn("stale spans failed",
			zap.Int("count", failed),
			zap.Duration("timeout", t.spanTimeout),
		)
	}
	return failed
}

// RunMaintenance runs Cleanup and FailStaleSpans every interval until ctx
// is done
func (t *Tracer) RunMaintenance(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info("span maintenance started",
		zap.Duration("interval", interval),
		zap.Duration("max_age", maxAge),
		zap.Duration("span_timeout", t.spanTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			t.FailStaleSpans()
			t.Cleanup(maxAge)
		}
	}
}
