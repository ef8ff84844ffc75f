// Package id provides centralized ID generation for the backend.
//
// Every ID has the form <prefix>_<unix-ms>_<suffix>:
//   - Debuggable: the prefix names the kind (trace_*, span_*, req_*, sess_*)
//   - Readable: the millisecond timestamp is plain decimal, no decoding needed
//   - Unique: the suffix is the 80-bit randomness section of a ULID drawn from
//     a monotonic entropy source, so IDs minted in the same millisecond differ
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// TraceID identifies one logical operation tree
type TraceID string

// SpanID identifies one unit of work inside a trace
type SpanID string

// RequestID identifies an API request
type RequestID string

// SessionID identifies a user session
type SessionID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	TracePrefix   = "trace"
	SpanPrefix    = "span"
	RequestPrefix = "req"
	SessionPrefix = "sess"
)

// suffixLen is the length of the randomness section of an encoded ULID.
const suffixLen = 16

// ErrMalformed is returned when an ID does not have the prefix_ms_suffix shape.
var ErrMalformed = errors.New("malformed id")

// ============================================================================
// Generator
// ============================================================================

// Generator mints prefixed IDs
type Generator struct {
	clock clockwork.Clock

	mu      sync.Mutex // guards entropy, MonotonicEntropy is not goroutine safe
	entropy *ulid.MonotonicEntropy
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(clockwork.NewRealClock())
	})
	return defaultGenerator
}

// NewGenerator creates a generator reading time from clock
func NewGenerator(clock clockwork.Clock) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// GenerateWithPrefix creates a new prefixed ID
func (g *Generator) GenerateWithPrefix(prefix string) string {
	now := g.clock.Now()
	ms := ulid.Timestamp(now)

	g.mu.Lock()
	u := ulid.MustNew(ms, g.entropy)
	g.mu.Unlock()

	return prefix + "_" + strconv.FormatUint(ms, 10) + "_" + u.String()[ulid.EncodedSize-suffixLen:]
}

// NewTraceID generates a new trace ID
func (g *Generator) NewTraceID() TraceID {
	return TraceID(g.GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func (g *Generator) NewSpanID() SpanID {
	return SpanID(g.GenerateWithPrefix(SpanPrefix))
}

// NewRequestID generates a new request ID
func (g *Generator) NewRequestID() RequestID {
	return RequestID(g.GenerateWithPrefix(RequestPrefix))
}

// NewSessionID generates a new session ID
func (g *Generator) NewSessionID() SessionID {
	return SessionID(g.GenerateWithPrefix(SessionPrefix))
}

// ============================================================================
// Package-level helpers on the default generator
// ============================================================================

func NewTraceID() TraceID     { return Default().NewTraceID() }
func NewSpanID() SpanID       { return Default().NewSpanID() }
func NewRequestID() RequestID { return Default().NewRequestID() }
func NewSessionID() SessionID { return Default().NewSessionID() }

func (id TraceID) String() string   { return string(id) }
func (id SpanID) String() string    { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id SessionID) String() string { return string(id) }

// ============================================================================
// Parsing and Validation
// ============================================================================

// Parts is a decomposed ID
type Parts struct {
	Prefix    string
	Timestamp time.Time
	Suffix    string
}

// Parse splits an ID into its prefix, timestamp and suffix
func Parse(s string) (Parts, error) {
	fields := strings.Split(s, "_")
	if len(fields) != 3 || fields[0] == "" {
		return Parts{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	ms, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Parts{}, fmt.Errorf("%w: bad timestamp in %q", ErrMalformed, s)
	}

	if len(fields[2]) != suffixLen {
		return Parts{}, fmt.Errorf("%w: bad suffix in %q", ErrMalformed, s)
	}
	// Pad with a zero timestamp so ulid validates the Crockford alphabet for us
	if _, err := ulid.ParseStrict(strings.Repeat("0", ulid.EncodedSize-suffixLen) + fields[2]); err != nil {
		return Parts{}, fmt.Errorf("%w: bad suffix in %q", ErrMalformed, s)
	}

	return Parts{
		Prefix:    fields[0],
		Timestamp: ulid.Time(ms),
		Suffix:    fields[2],
	}, nil
}

// IsValid reports whether s is a well formed ID
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Timestamp extracts the creation instant from an ID
func Timestamp(s string) (time.Time, error) {
	p, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return p.Timestamp, nil
}
