// Package stack coordinates contexts over a shared object store.
//
// A Stack owns one store, one main context confined to the main lane, and
// hands out short-lived background contexts for writes. Writes committed in
// the background are merged into the main context before the save returns.
//
// # Lanes
//
// The main lane is a goroutine owned by the Stack that runs queued blocks in
// FIFO order. Background lanes are one goroutine per write operation. Lane
// identity travels in context.Context: the context.Context handed to a main
// block marks the main lane, so Stack operations called from inside a block
// run inline instead of queueing behind the block that is waiting for them.
//
// # Confinement
//
// A Context may only be used while a block for it is running: inside OnMain
// or SaveInMainContext for the main context, inside the work function for a
// background context. Anything else is a ConfinementViolation. With
// Config.StrictConfinement (the default) violations panic.
//
// Objects belong to the context that materialized them. Passing an object to
// another context fails with ErrForeignObject; re-resolve it by identity with
// Context.Object(obj.Ref()) instead.
//
// # Isolation
//
// Background contexts are children of the store: they read committed state
// only and never see unsaved main-context edits.
package stack
