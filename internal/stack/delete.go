package stack

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/store"
)

// Delete removes obj inside the context that owns it and commits that
// context. Deleting an entity that no longer exists is a no-op.
//
//   - main-context objects: deleted and committed on the main lane
//   - objects of a running background context: deleted and committed in that
//     context; call Delete from inside its work
//   - objects of a finished background context: the reference is stale, so
//     the entity is re-resolved into the main context and deleted there
func (s *Stack) Delete(ctx context.Context, obj *Object) error {
	if obj == nil {
		return errors.New("delete: nil object")
	}
	owner := obj.Context()

	switch {
	case owner.IsMain():
		return s.OnMain(ctx, func(main *Context) error {
			return deleteAndSave(main, obj)
		})
	case owner.Closed():
		s.logger.Debug("delete: stale reference, resolving in main", "ref", obj.ref.String(), "owner", owner.id)
		return s.DeleteInMainContext(ctx, obj)
	default:
		return deleteAndSave(owner, obj)
	}
}

// DeleteInMainContext re-resolves obj by identity into the main context,
// deletes it there and commits. Works for objects from any context.
// Deleting an entity that no longer exists is a no-op.
func (s *Stack) DeleteInMainContext(ctx context.Context, obj *Object) error {
	if obj == nil {
		return errors.New("delete: nil object")
	}
	ref := obj.Ref()

	return s.OnMain(ctx, func(main *Context) error {
		target, err := main.Object(ref)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", ref, err)
		}
		return deleteAndSave(main, target)
	})
}

func deleteAndSave(c *Context, obj *Object) error {
	if err := c.Delete(obj); err != nil {
		return err
	}
	return c.Save()
}

// DeleteAll deletes every entity of kind on a background context and returns
// how many existed. Identities are read in pages of Config.DeleteBatchSize so
// memory stays bounded, and the deletions are committed once at the end.
//
// DeleteAll promises no atomicity across the batch. Today the single commit
// happens to be one transaction, but callers must not rely on that: a failure
// leaves whatever was already committed deleted, and entities of kind
// inserted by other commits while the pages are read may survive.
func (s *Stack) DeleteAll(ctx context.Context, kind entity.Kind) (int, error) {
	if kind == "" {
		return 0, errors.New("delete all: kind is required")
	}
	batch := s.cfg.DeleteBatchSize

	published, err := s.runBackground(ctx, "DeleteAll", func(bg *Context) error {
		after := ""
		for {
			refs, err := s.store.Identities(bg.Ctx(), kind, after, batch)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				if err := bg.deleteRef(ref); err != nil {
					return err
				}
			}
			s.logger.Debug("delete all: page", "kind", string(kind), "after", after, "count", len(refs))
			if len(refs) < batch {
				return nil
			}
			after = refs[len(refs)-1].ID
		}
	})

	n := 0
	for _, ch := range published {
		n += ch.removed
	}
	if err != nil {
		return n, err
	}
	s.logger.Info("delete all", "kind", string(kind), "deleted", n)
	return n, nil
}
