package stack

import (
	"github.com/roach88/graphstack/internal/entity"
)

// Object is the in-memory instance of an entity inside one context.
//
// An Object is never shared: each context materializes its own instance per
// identity. Reads (Get, Attributes, Version and the state predicates) are
// safe from any goroutine and return copies; mutations go through the owning
// Context and are confined to its lane.
type Object struct {
	ref   entity.Ref
	owner *Context

	// Guarded by owner.mu.
	attrs     entity.Attributes
	committed entity.Attributes // last committed snapshot; nil while inserted
	version   int64
	inserted  bool // not yet committed
	dirty     bool // attrs may differ from committed
	deleted   bool // deletion pending or committed
	gone      bool // no longer registered in owner
}

// Ref returns the object's identity.
func (o *Object) Ref() entity.Ref { return o.ref }

// Kind returns the entity kind.
func (o *Object) Kind() entity.Kind { return o.ref.Kind }

// ID returns the entity ID.
func (o *Object) ID() string { return o.ref.ID }

// Context returns the context that owns this instance.
func (o *Object) Context() *Context { return o.owner }

// Get returns one attribute, Null when unset.
func (o *Object) Get(name string) entity.Value {
	o.owner.mu.Lock()
	defer o.owner.mu.Unlock()
	return o.attrs.Get(name)
}

// Attributes returns a copy of the current in-memory attributes.
func (o *Object) Attributes() entity.Attributes {
	o.owner.mu.Lock()
	defer o.owner.mu.Unlock()
	return o.attrs.Clone()
}

// Version returns the committed version this instance reflects.
// 0 while the object has never been committed.
func (o *Object) Version() int64 {
	o.owner.mu.Lock()
	defer o.owner.mu.Unlock()
	return o.version
}

// IsInserted reports whether the object was created in its context and not
// yet committed.
func (o *Object) IsInserted() bool {
	o.owner.mu.Lock()
	defer o.owner.mu.Unlock()
	return o.inserted
}

// IsDeleted reports whether the object is deleted, pending or committed.
func (o *Object) IsDeleted() bool {
	o.owner.mu.Lock()
	defer o.owner.mu.Unlock()
	return o.deleted
}

// IsChanged reports whether the object has unsaved attribute edits.
func (o *Object) IsChanged() bool {
	o.owner.mu.Lock()
	defer o.owner.mu.Unlock()
	return o.changedLocked()
}

// IsValid reports whether the object is still registered in its context.
// Objects become invalid when their deletion is committed or merged, or
// when an insert is rolled back.
func (o *Object) IsValid() bool {
	o.owner.mu.Lock()
	defer o.owner.mu.Unlock()
	return !o.gone
}

// Fingerprint returns a content hash of the current in-memory state.
func (o *Object) Fingerprint() (string, error) {
	o.owner.mu.Lock()
	defer o.owner.mu.Unlock()
	return entity.Fingerprint(o.ref, o.attrs)
}

func (o *Object) String() string {
	return o.ref.String()
}

func (o *Object) changedLocked() bool {
	return o.dirty && !o.inserted && !o.attrs.Equal(o.committed)
}

// refreshLocked replaces the instance state with a committed snapshot.
func (o *Object) refreshLocked(attrs entity.Attributes, version int64) {
	o.attrs = attrs.Clone()
	o.committed = attrs.Clone()
	o.version = version
	o.dirty = false
}
