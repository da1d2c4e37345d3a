package stack

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/store"
)

// Role distinguishes the main context from background contexts.
type Role int

const (
	// RoleMain is the long-lived, read-optimized context on the main lane.
	RoleMain Role = iota + 1
	// RoleBackground is a single-use write context on its own lane.
	RoleBackground
)

func (r Role) String() string {
	switch r {
	case RoleMain:
		return "main"
	case RoleBackground:
		return "background"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Context is a lane-confined unit of work over the store: a local arena of
// objects keyed by identity plus the changes pending against them.
//
// Thread-safety model:
//   - mutations and fetches: only inside a block for this context
//   - Object reads, HasChanges, ID, Role: safe from any goroutine
//
// The mutex keeps the arena memory-safe; it does not make sharing a context
// between lanes legal.
type Context struct {
	id    string
	role  Role
	stack *Stack

	entered atomic.Int32
	closed  atomic.Bool

	mu       sync.Mutex
	ioCtx    context.Context // context.Context of the running block
	objects  map[entity.Ref]*Object
	inserts  []*Object    // pending inserts in creation order
	deletes  []entity.Ref // pending deletes in request order
	deleting map[entity.Ref]bool

	// published holds commits made by Save on a background context, to be
	// merged into the main context when the work returns.
	published []changes
}

func newContext(s *Stack, id string, role Role) *Context {
	return &Context{
		id:       id,
		role:     role,
		stack:    s,
		objects:  make(map[entity.Ref]*Object),
		deleting: make(map[entity.Ref]bool),
	}
}

// ID returns the context's identifier, recorded with each of its commits.
func (c *Context) ID() string { return c.id }

// Role returns whether this is the main or a background context.
func (c *Context) Role() Role { return c.role }

// IsMain reports whether c is the main context.
func (c *Context) IsMain() bool { return c.role == RoleMain }

// Closed reports whether the context has finished. Only background contexts
// close before the stack does.
func (c *Context) Closed() bool { return c.closed.Load() }

// Ctx returns the context.Context of the block currently running for c.
// Inside a main block it carries the main-lane mark, so pass it to Stack
// operations called from the block.
func (c *Context) Ctx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ioLocked()
}

func (c *Context) ioLocked() context.Context {
	if c.ioCtx == nil {
		return context.Background()
	}
	return c.ioCtx
}

// within runs fn as a block for c with ctx as its context.Context.
// Blocks nest: the previous block context is restored on return.
func (c *Context) within(ctx context.Context, fn func(*Context) error) error {
	c.mu.Lock()
	prev := c.ioCtx
	c.ioCtx = ctx
	c.mu.Unlock()

	c.entered.Add(1)
	defer func() {
		c.entered.Add(-1)
		c.mu.Lock()
		c.ioCtx = prev
		c.mu.Unlock()
	}()

	return fn(c)
}

// check enforces confinement for op.
func (c *Context) check(op string) error {
	switch {
	case c.closed.Load():
		return c.stack.violation(op, c.id, ErrContextClosed)
	case c.entered.Load() == 0:
		return c.stack.violation(op, c.id, ErrNotEntered)
	}
	return nil
}

// own rejects objects materialized by other contexts.
func (c *Context) own(op string, obj *Object) error {
	if obj == nil {
		return fmt.Errorf("%s: nil object", op)
	}
	if obj.owner != c {
		return fmt.Errorf("%s %s in %s: %w", op, obj.ref, c.id, ErrForeignObject)
	}
	return nil
}

// close ends the context. Objects it owns stay readable but can no longer
// be mutated through it.
func (c *Context) close() {
	c.closed.Store(true)
}

// Insert creates a new object of kind. It is pending until saved.
func (c *Context) Insert(kind entity.Kind, attrs entity.Attributes) (*Object, error) {
	if err := c.check("Insert"); err != nil {
		return nil, err
	}
	if kind == "" {
		return nil, errors.New("insert: kind is required")
	}
	if err := checkAttrNames(attrs); err != nil {
		return nil, fmt.Errorf("insert %s: %w", kind, err)
	}

	ref := entity.Ref{Kind: kind, ID: c.stack.ids.NewID()}
	obj := &Object{
		ref:      ref,
		owner:    c,
		attrs:    compact(attrs.Clone()),
		inserted: true,
		dirty:    true,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.objects[ref]; exists {
		return nil, fmt.Errorf("insert: duplicate id %s", ref)
	}
	c.objects[ref] = obj
	c.inserts = append(c.inserts, obj)
	return obj, nil
}

// Object returns this context's instance for ref, loading it from the store
// when it is not registered yet. Use it to re-resolve an object that came
// from another context. Returns an error wrapping store.ErrNotFound when the
// entity does not exist.
func (c *Context) Object(ref entity.Ref) (*Object, error) {
	if err := c.check("Object"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if obj, ok := c.objects[ref]; ok {
		return obj, nil
	}
	row, err := c.stack.store.Load(c.ioLocked(), ref)
	if err != nil {
		return nil, err
	}
	return c.registerLocked(row), nil
}

// Set changes one attribute. Setting Null unsets it.
func (c *Context) Set(obj *Object, name string, value entity.Value) error {
	return c.Update(obj, entity.Attributes{name: value})
}

// Update applies attrs on top of the object's attributes.
func (c *Context) Update(obj *Object, attrs entity.Attributes) error {
	if err := c.check("Update"); err != nil {
		return err
	}
	if err := c.own("update", obj); err != nil {
		return err
	}
	if err := checkAttrNames(attrs); err != nil {
		return fmt.Errorf("update %s: %w", obj.ref, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if obj.deleted || obj.gone {
		return fmt.Errorf("update %s: %w", obj.ref, ErrObjectDeleted)
	}
	obj.attrs = compact(obj.attrs.Merge(attrs))
	obj.dirty = true
	return nil
}

// Delete marks obj for deletion. An unsaved insert is simply dropped.
// Deleting an object that is already deleted is a no-op.
func (c *Context) Delete(obj *Object) error {
	if err := c.check("Delete"); err != nil {
		return err
	}
	if err := c.own("delete", obj); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if obj.deleted || obj.gone {
		return nil
	}
	obj.deleted = true
	if obj.inserted {
		c.dropLocked(obj)
		return nil
	}
	c.markDeleteLocked(obj.ref)
	return nil
}

// deleteRef marks an entity for deletion by identity alone, without loading
// it. Used by DeleteAll to keep memory bounded by identities.
func (c *Context) deleteRef(ref entity.Ref) error {
	if err := c.check("Delete"); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if obj, ok := c.objects[ref]; ok {
		if obj.deleted {
			return nil
		}
		obj.deleted = true
		if obj.inserted {
			c.dropLocked(obj)
			return nil
		}
	}
	c.markDeleteLocked(ref)
	return nil
}

func (c *Context) markDeleteLocked(ref entity.Ref) {
	if c.deleting[ref] {
		return
	}
	c.deleting[ref] = true
	c.deletes = append(c.deletes, ref)
}

// dropLocked unregisters obj and forgets any pending insert for it.
func (c *Context) dropLocked(obj *Object) {
	obj.gone = true
	delete(c.objects, obj.ref)
	if obj.inserted {
		for i, o := range c.inserts {
			if o == obj {
				c.inserts = append(c.inserts[:i], c.inserts[i+1:]...)
				break
			}
		}
	}
}

// HasChanges reports whether the context has anything to commit.
func (c *Context) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inserts) > 0 || len(c.deletes) > 0 {
		return true
	}
	for _, obj := range c.objects {
		if obj.changedLocked() {
			return true
		}
	}
	return false
}

// Rollback discards every pending change: inserts are dropped, edits are
// reverted to committed state and pending deletes are cancelled.
func (c *Context) Rollback() error {
	if err := c.check("Rollback"); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbackLocked()
	return nil
}

func (c *Context) rollbackLocked() {
	for _, obj := range c.inserts {
		obj.gone = true
		delete(c.objects, obj.ref)
	}
	c.inserts = nil

	for _, ref := range c.deletes {
		if obj, ok := c.objects[ref]; ok {
			obj.deleted = false
		}
	}
	c.deletes = nil
	c.deleting = make(map[entity.Ref]bool)

	for _, obj := range c.objects {
		if obj.dirty {
			obj.attrs = obj.committed.Clone()
			obj.dirty = false
		}
	}
}

// Refresh reloads obj from the store, discarding its unsaved edits.
// When the entity no longer exists the object is invalidated and an error
// wrapping store.ErrNotFound is returned.
func (c *Context) Refresh(obj *Object) error {
	if err := c.check("Refresh"); err != nil {
		return err
	}
	if err := c.own("refresh", obj); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if obj.inserted || obj.gone {
		return nil
	}

	row, err := c.stack.store.Load(c.ioLocked(), obj.ref)
	if errors.Is(err, store.ErrNotFound) {
		obj.deleted = true
		c.dropLocked(obj)
		delete(c.deleting, obj.ref)
		return err
	}
	if err != nil {
		return err
	}
	obj.refreshLocked(row.Attributes, row.Version)
	return nil
}

// registerLocked returns the registered instance for row, creating it on
// first sight. A clean instance older than row is refreshed in place, so
// one identity never maps to two instances in the same context.
func (c *Context) registerLocked(row store.Row) *Object {
	if obj, ok := c.objects[row.Ref]; ok {
		if !obj.dirty && !obj.deleted && row.Version > obj.version {
			obj.refreshLocked(row.Attributes, row.Version)
		}
		return obj
	}
	obj := &Object{ref: row.Ref, owner: c}
	obj.refreshLocked(row.Attributes, row.Version)
	c.objects[row.Ref] = obj
	return obj
}

// changeSetLocked snapshots pending changes for a commit.
// Updated objects are emitted in ref order so commits are deterministic.
func (c *Context) changeSetLocked() store.ChangeSet {
	cs := store.ChangeSet{ContextID: c.id}
	for _, obj := range c.inserts {
		cs.Inserted = append(cs.Inserted, store.Row{Ref: obj.ref, Attributes: obj.attrs.Clone()})
	}

	var updated []*Object
	for _, obj := range c.objects {
		if !obj.deleted && obj.changedLocked() {
			updated = append(updated, obj)
		}
	}
	sort.Slice(updated, func(i, j int) bool {
		return updated[i].ref.String() < updated[j].ref.String()
	})
	for _, obj := range updated {
		cs.Updated = append(cs.Updated, store.Row{Ref: obj.ref, Attributes: obj.attrs.Clone(), Version: obj.version})
	}

	cs.Deleted = append(cs.Deleted, c.deletes...)
	return cs
}

// applyCommitLocked folds a successful commit back into the arena.
func (c *Context) applyCommitLocked(ch changes) {
	for _, row := range ch.upserts {
		if obj, ok := c.objects[row.Ref]; ok {
			obj.inserted = false
			obj.committed = row.Attributes.Clone()
			obj.version = row.Version
			obj.dirty = !obj.attrs.Equal(obj.committed)
		}
	}
	c.inserts = nil

	for _, ref := range ch.deleted {
		if obj, ok := c.objects[ref]; ok {
			obj.deleted = true
			c.dropLocked(obj)
		}
		delete(c.deleting, ref)
	}
	c.deletes = nil
}

// checkAttrNames rejects names that could not be queried.
func checkAttrNames(attrs entity.Attributes) error {
	for name := range attrs {
		if !predicate.ValidAttr(name) {
			return fmt.Errorf("attribute name %q is not an identifier", name)
		}
	}
	return nil
}

// compact removes Null entries so unset and Null have one representation.
func compact(attrs entity.Attributes) entity.Attributes {
	for k, v := range attrs {
		if v == nil || entity.Equal(v, entity.Null{}) {
			delete(attrs, k)
		}
	}
	return attrs
}
