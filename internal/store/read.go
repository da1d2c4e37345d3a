package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/query"
	"github.com/roach88/graphstack/internal/querysql"
)

// CommitRecord is one row of the commits table.
type CommitRecord struct {
	Seq       int64
	ContextID string
	Inserted  int
	Updated   int
	Deleted   int
}

// Load returns the committed state of one entity.
// Returns ErrNotFound if the entity does not exist.
func (s *Store) Load(ctx context.Context, ref entity.Ref) (Row, error) {
	if err := s.checkOpen(ctx); err != nil {
		return Row{}, fmt.Errorf("load %s: %w", ref, err)
	}

	var attrs string
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT attributes, version FROM objects WHERE kind = ? AND id = ?
	`, string(ref.Kind), ref.ID).Scan(&attrs, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, fmt.Errorf("load %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return Row{}, fmt.Errorf("load %s: %w", ref, err)
	}

	parsed, err := unmarshalAttributes(attrs)
	if err != nil {
		return Row{}, fmt.Errorf("load %s: %w", ref, err)
	}
	return Row{Ref: ref, Attributes: parsed, Version: version}, nil
}

// Exists reports whether the entity is committed.
func (s *Store) Exists(ctx context.Context, ref entity.Ref) (bool, error) {
	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM objects WHERE kind = ? AND id = ?
	`, string(ref.Kind), ref.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", ref, err)
	}
	return true, nil
}

// Fetch returns every committed entity matching spec, in spec order.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Fetch(ctx context.Context, spec query.FetchSpec) ([]Row, error) {
	rows := []Row{}
	err := s.Each(ctx, spec, func(row Row) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// errStop ends iteration early without reporting an error.
var errStop = errors.New("stop")

// Each calls fn for every committed entity matching spec, in spec order.
//
// With spec.BatchSize > 0 rows are read one page at a time and at most one
// page is held in memory. Predicates that cannot be pushed down to SQL are
// applied to each row before fn sees it; spec.Limit counts rows after that
// filter. An error from fn stops iteration and is returned as is.
func (s *Store) Each(ctx context.Context, spec query.FetchSpec, fn func(Row) error) error {
	if err := s.checkOpen(ctx); err != nil {
		return fmt.Errorf("fetch %s: %w", spec.Kind, err)
	}

	stmt, err := querysql.Compile(spec)
	if err != nil {
		return err
	}

	seen := 0
	visit := func(row Row) error {
		if stmt.Residual != nil {
			ok, err := predicate.Match(stmt.Residual, row.Attributes)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", spec.Kind, err)
			}
			if !ok {
				return nil
			}
		}
		if err := fn(row); err != nil {
			return err
		}
		seen++
		if spec.Limit > 0 && seen >= spec.Limit {
			return errStop
		}
		return nil
	}

	if !spec.Batched() {
		sqlText, params := stmt.SQL, stmt.Params
		if spec.Limit > 0 && stmt.Exact() {
			sqlText, params = stmt.Page(spec.Limit, nil)
		}
		_, _, err := s.scan(ctx, spec.Kind, sqlText, params, visit)
		if errors.Is(err, errStop) {
			return nil
		}
		return err
	}

	// Each page resumes after the last row of the previous one, so commits
	// made by fn between pages never skip or repeat unchanged rows.
	var after *querysql.Cursor
	for {
		sqlText, params := stmt.Page(spec.BatchSize, after)
		n, last, err := s.scan(ctx, spec.Kind, sqlText, params, visit)
		if errors.Is(err, errStop) {
			return nil
		}
		if err != nil {
			return err
		}
		if n < spec.BatchSize {
			return nil
		}
		after = last
	}
}

// scan runs one query and feeds each row to visit, returning the number of
// rows read and a cursor after the last of them. Rows are fully drained
// before visit errors are returned.
func (s *Store) scan(ctx context.Context, kind entity.Kind, sqlText string, params []any, visit func(Row) error) (int, *querysql.Cursor, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return 0, nil, fmt.Errorf("query %s: %w", kind, err)
	}

	// Buffer the page so visit never runs while the single connection is busy.
	var page []Row
	for rows.Next() {
		var id, attrs string
		var version int64
		if err := rows.Scan(&id, &attrs, &version); err != nil {
			rows.Close()
			return 0, nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		parsed, err := unmarshalAttributes(attrs)
		if err != nil {
			rows.Close()
			return 0, nil, fmt.Errorf("scan %s#%s: %w", kind, id, err)
		}
		page = append(page, Row{Ref: entity.Ref{Kind: kind, ID: id}, Attributes: parsed, Version: version})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	rows.Close()

	var last *querysql.Cursor
	if len(page) > 0 {
		tail := page[len(page)-1]
		last = &querysql.Cursor{ID: tail.Ref.ID, Attributes: tail.Attributes.Clone()}
	}

	for _, row := range page {
		if err := visit(row); err != nil {
			return len(page), last, err
		}
	}
	return len(page), last, nil
}

// Count returns the number of committed entities matching spec.
// spec.Limit and spec.BatchSize are ignored.
func (s *Store) Count(ctx context.Context, spec query.FetchSpec) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, fmt.Errorf("count %s: %w", spec.Kind, err)
	}

	sqlText, params, ok, err := querysql.CompileCount(spec)
	if err != nil {
		return 0, err
	}
	if ok {
		var n int
		if err := s.db.QueryRowContext(ctx, sqlText, params...).Scan(&n); err != nil {
			return 0, fmt.Errorf("count %s: %w", spec.Kind, err)
		}
		return n, nil
	}

	n := 0
	spec.Limit = 0
	err = s.Each(ctx, spec, func(Row) error {
		n++
		return nil
	})
	return n, err
}

// Identities returns up to limit refs of kind with id greater than after,
// in id order. Pass after == "" to start from the beginning. Keyset paging
// stays correct while the caller deletes the rows it has already seen.
func (s *Store) Identities(ctx context.Context, kind entity.Kind, after string, limit int) ([]entity.Ref, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, fmt.Errorf("identities %s: %w", kind, err)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM objects
		WHERE kind = ? AND id > ? COLLATE BINARY
		ORDER BY id COLLATE BINARY ASC
		LIMIT ?
	`, string(kind), after, limit)
	if err != nil {
		return nil, fmt.Errorf("identities %s: %w", kind, err)
	}
	defer rows.Close()

	refs := []entity.Ref{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("identities %s: %w", kind, err)
		}
		refs = append(refs, entity.Ref{Kind: kind, ID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identities %s: %w", kind, err)
	}
	return refs, nil
}

// Commits returns the commit log in seq order.
func (s *Store) Commits(ctx context.Context) ([]CommitRecord, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, fmt.Errorf("commits: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, context_id, inserted, updated, deleted
		FROM commits
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	records := []CommitRecord{}
	for rows.Next() {
		var r CommitRecord
		if err := rows.Scan(&r.Seq, &r.ContextID, &r.Inserted, &r.Updated, &r.Deleted); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return records, nil
}
