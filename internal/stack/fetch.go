package stack

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/query"
	"github.com/roach88/graphstack/internal/querysql"
	"github.com/roach88/graphstack/internal/store"
)

// errStop ends an Each early without reporting an error.
var errStop = errors.New("stop")

// Fetch executes spec against this context and returns its instances.
//
// Results reflect the context's own view: committed matches from the store,
// with unsaved edits re-evaluated in memory, unsaved inserts that match
// included, and pending deletes excluded. Order is spec.Sort then id, the
// store's natural order.
func (c *Context) Fetch(spec query.FetchSpec) ([]*Object, error) {
	if err := c.check("Fetch"); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.hasPendingLocked(spec.Kind)
	storeSpec := spec
	if pending {
		// The limit can only be applied after local changes are folded in.
		storeSpec = spec.WithLimit(0)
	}

	results := []*Object{}
	seen := make(map[entity.Ref]bool)
	err := c.stack.store.Each(c.ioLocked(), storeSpec, func(row store.Row) error {
		obj := c.registerLocked(row)
		seen[obj.ref] = true
		ok, err := c.visibleLocked(obj, spec.Predicate)
		if err != nil {
			return err
		}
		if ok {
			results = append(results, obj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !pending {
		return results, nil
	}

	extra, err := c.localMatchesLocked(spec, seen)
	if err != nil {
		return nil, err
	}
	results = append(results, extra...)
	sortObjects(results, spec.Sort)
	if spec.Limit > 0 && len(results) > spec.Limit {
		results = results[:spec.Limit]
	}
	return results, nil
}

// Each calls fn for every object Fetch would return, reading the store one
// batch at a time when spec.BatchSize > 0.
//
// Committed matches are visited in store order, then unsaved inserts and
// edited objects that only match in memory. fn runs without the context
// lock held and may mutate the objects it receives. An error from fn stops
// the iteration and is returned.
func (c *Context) Each(spec query.FetchSpec, fn func(*Object) error) error {
	if err := c.check("Each"); err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	limit := spec.Limit
	if c.HasChanges() {
		spec = spec.WithLimit(0)
	}

	count := 0
	seen := make(map[entity.Ref]bool)
	emit := func(obj *Object) error {
		if err := fn(obj); err != nil {
			return err
		}
		count++
		if limit > 0 && count >= limit {
			return errStop
		}
		return nil
	}

	err := c.stack.store.Each(c.Ctx(), spec, func(row store.Row) error {
		c.mu.Lock()
		obj := c.registerLocked(row)
		seen[obj.ref] = true
		ok, err := c.visibleLocked(obj, spec.Predicate)
		c.mu.Unlock()
		if err != nil || !ok {
			return err
		}
		return emit(obj)
	})
	if errors.Is(err, errStop) {
		return nil
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	extra, err := c.localMatchesLocked(spec, seen)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	for _, obj := range extra {
		if err := emit(obj); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Count returns how many objects Fetch would return, ignoring spec.Limit.
func (c *Context) Count(spec query.FetchSpec) (int, error) {
	if err := c.check("Count"); err != nil {
		return 0, err
	}
	spec = spec.WithLimit(0)

	c.mu.Lock()
	pending := c.hasPendingLocked(spec.Kind)
	io := c.ioLocked()
	c.mu.Unlock()

	if !pending {
		return c.stack.store.Count(io, spec)
	}
	objs, err := c.Fetch(spec)
	if err != nil {
		return 0, err
	}
	return len(objs), nil
}

// visibleLocked reports whether a registered object belongs in results.
// Objects with unsaved edits are judged by their in-memory state.
func (c *Context) visibleLocked(obj *Object, pred predicate.Predicate) (bool, error) {
	if obj.deleted || obj.gone {
		return false, nil
	}
	if !obj.changedLocked() {
		return true, nil
	}
	ok, err := predicate.Match(pred, obj.attrs)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", obj.ref.Kind, err)
	}
	return ok, nil
}

// localMatchesLocked returns objects of spec.Kind the store did not return
// but that match in memory: unsaved inserts and edited objects.
func (c *Context) localMatchesLocked(spec query.FetchSpec, seen map[entity.Ref]bool) ([]*Object, error) {
	var out []*Object
	for _, obj := range c.inserts {
		if obj.ref.Kind != spec.Kind {
			continue
		}
		ok, err := predicate.Match(spec.Predicate, obj.attrs)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", spec.Kind, err)
		}
		if ok {
			out = append(out, obj)
		}
	}

	var edited []*Object
	for ref, obj := range c.objects {
		if ref.Kind != spec.Kind || seen[ref] || obj.inserted || obj.deleted || !obj.changedLocked() {
			continue
		}
		ok, err := predicate.Match(spec.Predicate, obj.attrs)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", spec.Kind, err)
		}
		if ok {
			edited = append(edited, obj)
		}
	}
	sortObjects(edited, nil)
	return append(out, edited...), nil
}

// hasPendingLocked reports whether any unsaved change touches kind.
func (c *Context) hasPendingLocked(kind entity.Kind) bool {
	for _, obj := range c.inserts {
		if obj.ref.Kind == kind {
			return true
		}
	}
	for _, ref := range c.deletes {
		if ref.Kind == kind {
			return true
		}
	}
	for ref, obj := range c.objects {
		if ref.Kind == kind && obj.changedLocked() {
			return true
		}
	}
	return false
}

// sortObjects orders objects the way the store orders rows.
func sortObjects(objs []*Object, keys []query.SortKey) {
	sort.SliceStable(objs, func(i, j int) bool {
		a, b := objs[i], objs[j]
		return querysql.CompareRows(keys, a.ref.ID, a.attrs, b.ref.ID, b.attrs) < 0
	})
}
