// Package query defines fetch specifications: immutable descriptions of what
// to retrieve from the store, decoupled from any context until execution.
package query

import (
	"fmt"
	"strings"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
)

// SortKey orders results by one attribute.
type SortKey struct {
	Attr       string
	Descending bool
}

// FetchSpec describes a fetch. It is a value: the With*/SortedBy methods
// return modified copies and never touch the receiver.
type FetchSpec struct {
	// Kind selects the entity kind. Required.
	Kind entity.Kind

	// Predicate filters results. Nil matches every entity of Kind.
	Predicate predicate.Predicate

	// BatchSize bounds how many rows are read from the store per round trip.
	// 0 means no batching: everything is read eagerly.
	BatchSize int

	// Limit caps the number of results. 0 means no limit.
	Limit int

	// Sort orders results. Empty means the store's natural order (id ascending).
	Sort []SortKey
}

// BuildFetch constructs a fetch specification without executing it.
// batchSize <= 0 means "no batching, fetch eagerly"; pred == nil means
// "match all entities of kind".
//
// BuildFetch is pure: identical arguments produce equal specifications.
func BuildFetch(kind entity.Kind, pred predicate.Predicate, batchSize int) FetchSpec {
	if batchSize < 0 {
		batchSize = 0
	}
	return FetchSpec{
		Kind:      kind,
		Predicate: pred,
		BatchSize: batchSize,
	}
}

// SortedBy returns a copy with an additional sort key.
func (s FetchSpec) SortedBy(attr string, descending bool) FetchSpec {
	sort := make([]SortKey, len(s.Sort), len(s.Sort)+1)
	copy(sort, s.Sort)
	s.Sort = append(sort, SortKey{Attr: attr, Descending: descending})
	return s
}

// WithLimit returns a copy with the result limit set.
func (s FetchSpec) WithLimit(n int) FetchSpec {
	if n < 0 {
		n = 0
	}
	s.Limit = n
	return s
}

// WithBatchSize returns a copy with the batch size set.
func (s FetchSpec) WithBatchSize(n int) FetchSpec {
	if n < 0 {
		n = 0
	}
	s.BatchSize = n
	return s
}

// Batched reports whether results are read in pages.
func (s FetchSpec) Batched() bool {
	return s.BatchSize > 0
}

// Validate checks that the spec can be executed.
func (s FetchSpec) Validate() error {
	if s.Kind == "" {
		return fmt.Errorf("fetch: kind is required")
	}
	if err := predicate.Validate(s.Predicate).Err(); err != nil {
		return fmt.Errorf("fetch %s: %w", s.Kind, err)
	}
	for _, key := range s.Sort {
		if !predicate.ValidAttr(key.Attr) {
			return fmt.Errorf("fetch %s: sort attribute %q is not an identifier", s.Kind, key.Attr)
		}
	}
	return nil
}

// String renders the spec for logs and traces.
func (s FetchSpec) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s where %s", s.Kind, predicate.Describe(s.Predicate))
	for i, key := range s.Sort {
		if i == 0 {
			b.WriteString(" sort ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(key.Attr)
		if key.Descending {
			b.WriteString(" desc")
		}
	}
	if s.Limit > 0 {
		fmt.Fprintf(&b, " limit %d", s.Limit)
	}
	if s.BatchSize > 0 {
		fmt.Fprintf(&b, " batch %d", s.BatchSize)
	}
	return b.String()
}
