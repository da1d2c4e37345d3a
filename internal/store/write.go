package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/graphstack/internal/entity"
)

// ErrConflict is returned when a commit updates an entity that no longer
// exists in the store.
var ErrConflict = errors.New("store: entity was deleted by another commit")

// Row is the committed state of one entity.
type Row struct {
	Ref        entity.Ref
	Attributes entity.Attributes
	Version    int64
}

// ChangeSet is everything one context wants to commit.
type ChangeSet struct {
	// ContextID identifies the committing context in the commits table.
	ContextID string

	// Inserted are new entities. Version is ignored.
	Inserted []Row

	// Updated are existing entities with their full new attributes.
	Updated []Row

	// Deleted are entities to remove. Missing entities are skipped.
	Deleted []entity.Ref
}

// Empty reports whether the change set has nothing to commit.
func (c ChangeSet) Empty() bool {
	return len(c.Inserted) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Size returns the number of entities touched.
func (c ChangeSet) Size() int {
	return len(c.Inserted) + len(c.Updated) + len(c.Deleted)
}

// CommitResult is the store's answer to a successful commit.
type CommitResult struct {
	// Seq is the commit's logical sequence number. 0 for an empty change set.
	Seq int64

	// Versions holds the new version of every inserted or updated entity.
	Versions map[entity.Ref]int64

	// Deleted lists the entities that existed and were removed.
	Deleted []entity.Ref
}

// Commit writes a change set in one transaction: all of it lands or none of it.
//
// Commits are serialized; each successful non-empty commit gets the next seq.
// Inserting an existing (kind, id) or updating a missing one fails the whole
// commit. Deleting a missing entity is not an error.
func (s *Store) Commit(ctx context.Context, cs ChangeSet) (CommitResult, error) {
	if err := s.checkOpen(ctx); err != nil {
		return CommitResult{}, fmt.Errorf("commit: %w", err)
	}
	if cs.Empty() {
		return CommitResult{Versions: map[entity.Ref]int64{}}, nil
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	seq := s.clock.Next()
	result, err := s.commitTx(ctx, seq, cs)
	if err != nil {
		s.clock.rewind(seq)
		return CommitResult{}, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func (s *Store) commitTx(ctx context.Context, seq int64, cs ChangeSet) (CommitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CommitResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result := CommitResult{
		Seq:      seq,
		Versions: make(map[entity.Ref]int64, len(cs.Inserted)+len(cs.Updated)),
	}

	for _, row := range cs.Inserted {
		if err := insertRow(ctx, tx, seq, row); err != nil {
			return CommitResult{}, err
		}
		result.Versions[row.Ref] = 1
	}

	for _, row := range cs.Updated {
		version, err := updateRow(ctx, tx, seq, row)
		if err != nil {
			return CommitResult{}, err
		}
		result.Versions[row.Ref] = version
	}

	for _, ref := range cs.Deleted {
		res, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE kind = ? AND id = ?`, string(ref.Kind), ref.ID)
		if err != nil {
			return CommitResult{}, fmt.Errorf("delete %s: %w", ref, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.Deleted = append(result.Deleted, ref)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commits (seq, context_id, inserted, updated, deleted)
		VALUES (?, ?, ?, ?, ?)
	`, seq, cs.ContextID, len(cs.Inserted), len(cs.Updated), len(result.Deleted))
	if err != nil {
		return CommitResult{}, fmt.Errorf("record commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return CommitResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

func insertRow(ctx context.Context, tx *sql.Tx, seq int64, row Row) error {
	attrs, err := marshalAttributes(row.Attributes)
	if err != nil {
		return fmt.Errorf("insert %s: %w", row.Ref, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO objects (kind, id, attributes, version, created_seq, updated_seq)
		VALUES (?, ?, ?, 1, ?, ?)
	`, string(row.Ref.Kind), row.Ref.ID, attrs, seq, seq)
	if err != nil {
		return fmt.Errorf("insert %s: %w", row.Ref, err)
	}
	return nil
}

// updateRow overwrites the entity's attributes and returns its new version.
// Last writer wins: concurrent updates of the same entity are ordered by seq.
func updateRow(ctx context.Context, tx *sql.Tx, seq int64, row Row) (int64, error) {
	attrs, err := marshalAttributes(row.Attributes)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", row.Ref, err)
	}

	var version int64
	err = tx.QueryRowContext(ctx, `
		UPDATE objects SET attributes = ?, version = version + 1, updated_seq = ?
		WHERE kind = ? AND id = ?
		RETURNING version
	`, attrs, seq, string(row.Ref.Kind), row.Ref.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("update %s: %w", row.Ref, ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", row.Ref, err)
	}
	return version, nil
}
