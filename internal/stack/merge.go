package stack

import (
	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/store"
)

// changes is a committed change set as other contexts see it: the new
// committed state of every inserted or updated entity plus the removed
// identities.
type changes struct {
	seq     int64
	context string
	upserts []store.Row
	deleted []entity.Ref

	// removed counts the deletes that found an entity.
	removed int
}

func newChanges(cs store.ChangeSet, res store.CommitResult) changes {
	ch := changes{seq: res.Seq, context: cs.ContextID, removed: len(res.Deleted)}
	for _, rows := range [][]store.Row{cs.Inserted, cs.Updated} {
		for _, row := range rows {
			row.Version = res.Versions[row.Ref]
			ch.upserts = append(ch.upserts, row)
		}
	}
	// Requested deletes, not just the ones that existed: an identity the
	// store no longer holds must not linger in any arena either.
	ch.deleted = append(ch.deleted, cs.Deleted...)
	return ch
}

func (ch changes) empty() bool {
	return len(ch.upserts) == 0 && len(ch.deleted) == 0
}

// mergeStats reports what a merge did to the main arena.
type mergeStats struct {
	refreshed   int
	stale       int
	invalidated int
}

// mergeLocked applies committed changes from another context to c.
//
// Only registered objects are touched; anything else is read fresh from the
// store on the next fetch. An object whose version is already at or past the
// incoming one is left alone, so merges racing each other still leave every
// object at its newest committed state.
func (c *Context) mergeLocked(ch changes, policy MergePolicy) mergeStats {
	var stats mergeStats

	for _, row := range ch.upserts {
		obj, ok := c.objects[row.Ref]
		if !ok {
			continue
		}
		if obj.version >= row.Version {
			stats.stale++
			continue
		}
		if policy == MergeObjectWins && obj.changedLocked() {
			edited := obj.committed.Diff(obj.attrs)
			merged := row.Attributes.Clone()
			for _, name := range edited {
				merged[name] = obj.attrs.Get(name)
			}
			obj.attrs = compact(merged)
			obj.committed = row.Attributes.Clone()
			obj.version = row.Version
			obj.dirty = !obj.attrs.Equal(obj.committed)
		} else {
			obj.refreshLocked(row.Attributes, row.Version)
		}
		stats.refreshed++
	}

	for _, ref := range ch.deleted {
		if obj, ok := c.objects[ref]; ok {
			obj.deleted = true
			c.dropLocked(obj)
			stats.invalidated++
		}
		if c.deleting[ref] {
			delete(c.deleting, ref)
			c.deletes = removeRef(c.deletes, ref)
		}
	}

	return stats
}

func removeRef(refs []entity.Ref, ref entity.Ref) []entity.Ref {
	for i, r := range refs {
		if r == ref {
			return append(refs[:i], refs[i+1:]...)
		}
	}
	return refs
}
