// Package id provides id generation for the service.
//
// Sessions, streams, and queued requests use prefixed ULIDs (sess_*,
// strm_*, req_*): lexicographically sortable, readable in logs, and
// collision-free across restarts. Message ids use UUIDs to stay
// interchangeable with ids the wellness backend mints for its own
// message records.
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

// Prefixes keep id namespaces apart and make log lines self-describing.
const (
	SessionPrefix = "sess"
	StreamPrefix  = "strm"
	RequestPrefix = "req"
)

// Generator mints ULIDs from a guarded entropy source.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with custom entropy,
// for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

var (
	defaultGen  *Generator
	defaultOnce sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	defaultOnce.Do(func() {
		defaultGen = NewGenerator()
	})
	return defaultGen
}

// Generate mints one ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// WithPrefix mints a prefixed ULID string.
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSession mints a session id. Used only for locally created
// sessions; server-issued ids are kept verbatim.
func NewSession() string { return Default().WithPrefix(SessionPrefix) }

// NewRequest mints a queued-request id.
func NewRequest() string { return Default().WithPrefix(RequestPrefix) }

// NewStream mints a stream id scoped to a session. The sequence number
// is the session's monotonic exchange counter, so ids sort in exchange
// order within one session.
func NewStream(sessionID string, seq uint64) string {
	return fmt.Sprintf("%s_%s#%d", StreamPrefix, sessionID, seq)
}

// NewMessage mints a message id.
func NewMessage() string { return uuid.NewString() }

// IsValidULID checks a bare (unprefixed) ULID string.
func IsValidULID(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}
