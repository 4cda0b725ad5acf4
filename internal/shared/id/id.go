// Package id provides identifier generation for the shell host.
//
// Two kinds of identifiers live here:
//   - References: strictly increasing integers minted by an injected Allocator.
//     Each side of a window channel owns its own allocator, so the controller's
//     references and the display's references form disjoint key spaces.
//   - Connection IDs: prefixed ULIDs used to tell websocket connections apart in logs.
//
// The zero Ref is reserved for "no reference" and is never issued.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// References
// ============================================================================

// Ref is a process-unique reference minted by an Allocator.
type Ref uint64

// RemoteRef is a reference minted by the other side of a channel. It is
// opaque to the side that receives it and only ever compared for equality.
type RemoteRef string

// ChannelPrefix namespaces window channel names.
const ChannelPrefix = "event_"

// ErrInvalidRef is returned when a string does not hold a non-zero reference.
var ErrInvalidRef = errors.New("invalid reference")

// IsZero reports whether r is the reserved "no reference" value.
func (r Ref) IsZero() bool { return r == 0 }

// String renders the reference in decimal.
func (r Ref) String() string { return strconv.FormatUint(uint64(r), 10) }

// Remote renders a locally minted reference the way the other side sees it.
func (r Ref) Remote() RemoteRef { return RemoteRef(r.String()) }

func (r RemoteRef) String() string { return string(r) }

// ParseRef recovers a locally minted reference from its wire form.
func ParseRef(remote RemoteRef) (Ref, error) {
	n, err := strconv.ParseUint(string(remote), 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRef, string(remote))
	}
	return Ref(n), nil
}

// SessionSeparator joins a display session to the refs it mints.
const SessionSeparator = "."

// RemoteIn renders the reference under a display session, so refs minted by
// different displays of one window never collide. An empty session is Remote.
func (r Ref) RemoteIn(session string) RemoteRef {
	if session == "" {
		return r.Remote()
	}
	return RemoteRef(session + SessionSeparator + r.String())
}

// ParseRefIn is the inverse of RemoteIn. Refs of another session are invalid.
func ParseRefIn(session string, remote RemoteRef) (Ref, error) {
	if session == "" {
		return ParseRef(remote)
	}
	rest, ok := strings.CutPrefix(string(remote), session+SessionSeparator)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not from session %s", ErrInvalidRef, string(remote), session)
	}
	return ParseRef(RemoteRef(rest))
}

// Channel returns the channel name owned by the window with the given reference.
func Channel(window Ref) string {
	return ChannelPrefix + window.String()
}

// Allocator issues strictly increasing references. The zero value is ready
// to use and its first reference is 1.
type Allocator struct {
	last atomic.Uint64
}

// NewAllocator creates a new allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next returns a reference that has never been returned before.
func (a *Allocator) Next() Ref {
	return Ref(a.last.Add(1))
}

// Last returns the most recently issued reference, or zero.
func (a *Allocator) Last() Ref {
	return Ref(a.last.Load())
}

// ============================================================================
// Connection IDs (ULID)
// ============================================================================

// ConnID identifies a websocket connection
type ConnID string

// ConnPrefix is the prefix of connection IDs.
const ConnPrefix = "conn"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
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

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
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

// NewConnID generates a new connection ID
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

func (c ConnID) String() string { return string(c) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
