package stack

import (
	"context"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/query"
)

// Find builds a fetch for kind and executes it against the main context.
// batchSize <= 0 reads eagerly; pred == nil matches every entity of kind.
//
// Find must be called from a main block with that block's context.Context;
// anywhere else it is a confinement violation.
func (s *Stack) Find(ctx context.Context, kind entity.Kind, pred predicate.Predicate, batchSize int) ([]*Object, error) {
	return s.FindSpec(ctx, query.BuildFetch(kind, pred, batchSize))
}

// FindSpec executes a prepared fetch specification against the main context.
// Same confinement rule as Find.
func (s *Stack) FindSpec(ctx context.Context, spec query.FetchSpec) ([]*Object, error) {
	if err := s.requireMain(ctx, "Find"); err != nil {
		return nil, err
	}
	return s.main.Fetch(spec)
}
