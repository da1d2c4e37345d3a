package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/graphstack/internal/entity"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// widget builds a Widget row with the given id, name and quantity.
func widget(id, name string, qty int64) Row {
	return Row{
		Ref: entity.Ref{Kind: "Widget", ID: id},
		Attributes: entity.Attributes{
			"name": entity.String(name),
			"qty":  entity.Int(qty),
		},
	}
}

// seed commits the rows as inserts and fails the test on error.
func seed(t *testing.T, s *Store, rows ...Row) CommitResult {
	t.Helper()
	res, err := s.Commit(context.Background(), ChangeSet{ContextID: "seed", Inserted: rows})
	if err != nil {
		t.Fatalf("seed commit failed: %v", err)
	}
	return res
}
