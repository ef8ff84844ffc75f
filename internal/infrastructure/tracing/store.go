package tracing

import (
	"sort"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultHistoryLimit bounds the completed-span history
const DefaultHistoryLimit = 1000

// store owns every span. Active spans live in a map keyed by span ID;
// finished spans move into a FIFO queue ordered by completion and bounded
// by limit. All methods are atomic with respect to each other.
type store struct {
	mu        sync.RWMutex
	active    map[string]*Span
	completed *queue.Queue // of *Span
	limit     int
}

func newStore(limit int) *store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &store{
		active:    make(map[string]*Span),
		completed: queue.New(),
		limit:     limit,
	}
}

func (s *store) insert(span *Span) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[span.SpanID] = span
	return len(s.active)
}

// finish moves a span into the completed history. ok is false when the span
// is not active. evicted counts history entries dropped to respect limit.
func (s *store) finish(spanID string, end time.Time, status Status, spanErr *SpanError) (done Span, evicted int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span, ok := s.active[spanID]
	if !ok {
		return Span{}, 0, false
	}

	d := end.Sub(span.StartTime)
	span.EndTime = &end
	span.Duration = &d
	span.Status = status
	if spanErr != nil {
		span.Error = spanErr
		span.Tags["error"] = attribute.BoolValue(true)
		span.Tags["error.message"] = attribute.StringValue(spanErr.Message)
		if spanErr.Stack != "" {
			span.Tags["error.stack"] = attribute.StringValue(spanErr.Stack)
		}
	}

	delete(s.active, spanID)
	s.completed.Add(span)
	for s.completed.Length() > s.limit {
		s.completed.Remove()
		evicted++
	}

	return span.clone(), evicted, true
}

func (s *store) appendLog(spanID string, entry LogEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	span, ok := s.active[spanID]
	if !ok {
		return false
	}
	entry.TraceID = span.TraceID
	span.Logs = append(span.Logs, entry)
	return true
}

func (s *store) mergeTags(spanID string, kvs []attribute.KeyValue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	span, ok := s.active[spanID]
	if !ok {
		return false
	}
	for _, kv := range kvs {
		span.Tags[string(kv.Key)] = kv.Value
	}
	return true
}

func (s *store) get(spanID string) (Span, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	span, ok := s.active[spanID]
	if !ok {
		return Span{}, false
	}
	return span.clone(), true
}

// byTrace returns active spans ordered by start time, then completed spans
// in completion order
func (s *store) byTrace(traceID string) []Span {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Span
	for _, span := range s.active {
		if span.TraceID == traceID {
			out = append(out, span.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].SpanID < out[j].SpanID
	})

	for i := 0; i < s.completed.Length(); i++ {
		span := s.completed.Get(i).(*Span)
		if span.TraceID == traceID {
			out = append(out, span.clone())
		}
	}
	return out
}

// eachCompleted calls fn for every completed span under the read lock.
// fn must not retain the pointer.
func (s *store) eachCompleted(fn func(*Span)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < s.completed.Length(); i++ {
		fn(s.completed.Get(i).(*Span))
	}
}

// prune drops completed spans that started before cutoff
func (s *store) prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := queue.New()
	removed := 0
	for s.completed.Length() > 0 {
		span := s.completed.Remove().(*Span)
		if span.StartTime.Before(cutoff) {
			removed++
			continue
		}
		kept.Add(span)
	}
	s.completed = kept
	return removed
}

// startedBy lists active span IDs that started at or before cutoff
func (s *store) startedBy(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, span := range s.active {
		if !span.StartTime.After(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *store) activeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

func (s *store) completedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed.Length()
}
