package entity

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Kind names a class of entities (e.g. "Widget").
type Kind string

// Ref is the stable identity of an entity: its kind plus an opaque ID.
// Refs are the only form of entity reference that may cross contexts.
type Ref struct {
	Kind Kind
	ID   string
}

// String returns the type-qualified form "Kind#id".
func (r Ref) String() string {
	return string(r.Kind) + "#" + r.ID
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// ParseRef parses the "Kind#id" form produced by Ref.String.
func ParseRef(s string) (Ref, error) {
	kind, id, ok := strings.Cut(s, "#")
	if !ok || kind == "" || id == "" {
		return Ref{}, fmt.Errorf("invalid ref %q: want Kind#id", s)
	}
	return Ref{Kind: Kind(kind), ID: id}, nil
}

// IDGenerator produces entity IDs.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 IDs, so the store's natural
// id order is also creation order.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a new hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns prefix-0001, prefix-0002, ... for deterministic
// tests and golden traces. Safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// NewID returns the next ID in sequence.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
