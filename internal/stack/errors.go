package stack

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is the panic value for using a stack that was never
	// set up or has been closed.
	ErrNotInitialized = errors.New("stack: not initialized")

	// ErrAlreadyInitialized is wrapped by the SetupError returned when a
	// manager is initialized a second time with a different name.
	ErrAlreadyInitialized = errors.New("stack: already initialized with a different configuration")

	// ErrForeignObject is returned when an object is passed to a context
	// other than the one that owns it.
	ErrForeignObject = errors.New("stack: object belongs to another context")

	// ErrObjectDeleted is returned when mutating an object that is deleted.
	ErrObjectDeleted = errors.New("stack: object is deleted")

	// ErrContextClosed is the cause of violations on a finished context.
	ErrContextClosed = errors.New("context is closed")

	// ErrNotEntered is the cause of violations outside any block for the
	// context.
	ErrNotEntered = errors.New("context used outside its lane")

	// ErrNotOnMainLane is the cause of violations by main-lane-only
	// operations called from elsewhere.
	ErrNotOnMainLane = errors.New("operation requires the main lane")

	// ErrForeignBlockContext is the cause of violations by code inside a
	// main block that calls back into the stack without the block's
	// context. Queueing that call behind the running block would deadlock.
	ErrForeignBlockContext = errors.New("main block called the stack without its context")

	// ErrStackClosed is returned when queueing work on a closed stack.
	ErrStackClosed = errors.New("stack: closed")
)

// SetupError reports that a stack could not be created: the configuration
// was invalid or the store could not be opened. There is no degraded mode.
type SetupError struct {
	Name string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %q: %v", e.Name, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// CommitError reports that a context's pending changes could not be
// persisted. The in-memory work of that context is lost; nothing is retried.
type CommitError struct {
	// Context is the ID of the context whose commit failed.
	Context string
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.Context, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// ConfinementViolation reports a context used from the wrong lane or after
// it finished. It is a programming error: in strict mode it is raised with
// panic.
type ConfinementViolation struct {
	// Op is the operation that was attempted, e.g. "Insert".
	Op string

	// Context is the ID of the context involved.
	Context string

	// Err is ErrNotEntered, ErrContextClosed or ErrNotOnMainLane.
	Err error
}

func (e *ConfinementViolation) Error() string {
	return fmt.Sprintf("confinement violation: %s on %s: %v", e.Op, e.Context, e.Err)
}

func (e *ConfinementViolation) Unwrap() error {
	return e.Err
}

// WorkError wraps an error returned by a unit of work. Changes the work left
// pending were discarded; only explicit Context.Save calls inside the work
// reached the store.
type WorkError struct {
	Err error
}

func (e *WorkError) Error() string {
	return fmt.Sprintf("work failed: %v", e.Err)
}

func (e *WorkError) Unwrap() error {
	return e.Err
}
