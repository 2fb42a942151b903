// Package id provides centralized ID generation for the terminal service.
//
// Two formats are used on purpose:
//   - Session and connection ids are random UUIDv4 strings. A session id is
//     a capability on the streaming endpoint, so it must not be guessable or
//     leak its creation time.
//   - Trace and span ids are prefixed ULIDs (trace_*, span_*). They are
//     k-sortable, which keeps request logs readable in time order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// SessionID identifies a terminal session
type SessionID string

// ConnectionID identifies one streaming connection
type ConnectionID string

// TraceID identifies a request trace
type TraceID string

// SpanID identifies a span within a trace
type SpanID string

const (
	TracePrefix = "trace"
	SpanPrefix  = "span"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new terminal session ID
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// NewConnectionID generates a new streaming connection ID
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// NewTraceID generates a new trace ID
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

func (id SessionID) String() string    { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id TraceID) String() string      { return string(id) }
func (id SpanID) String() string       { return string(id) }

// IsSessionID reports whether s has the shape of a session id. Lookups use it
// to reject garbage before touching the registry.
func IsSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed ULID such as a trace id
func Timestamp(prefixed string) (time.Time, error) {
	raw := prefixed
	for i := 0; i < len(prefixed); i++ {
		if prefixed[i] == '_' {
			raw = prefixed[i+1:]
			break
		}
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
