package stack

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/graphstack/internal/config"
)

// Manager is the composition-root helper that turns a configuration name into
// the one Stack of the process. Lifecycle: uninitialized -> initialized; it
// stays initialized for its lifetime.
//
// A Manager replaces process-wide singletons: construct it explicitly and pass
// it (or the Stack it returns) to callers.
type Manager struct {
	resolve config.Resolver
	opts    []Option

	mu    sync.Mutex
	name  string
	stack *Stack
}

// NewManager creates an uninitialized manager. resolve maps configuration
// names to configurations; opts are applied to the Stack it builds.
func NewManager(resolve config.Resolver, opts ...Option) *Manager {
	return &Manager{resolve: resolve, opts: opts}
}

// Initialize opens the store for the named configuration and builds the
// Stack. Repeating the call with the same name returns the existing Stack;
// a different name returns a *SetupError wrapping ErrAlreadyInitialized.
// Any failure to resolve the configuration or open the store is a
// *SetupError.
func (m *Manager) Initialize(ctx context.Context, name string) (*Stack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stack != nil {
		if name == m.name {
			return m.stack, nil
		}
		return nil, &SetupError{
			Name: name,
			Err:  fmt.Errorf("initialized as %q: %w", m.name, ErrAlreadyInitialized),
		}
	}

	if m.resolve == nil {
		return nil, &SetupError{Name: name, Err: fmt.Errorf("no configuration resolver")}
	}
	cfg, err := m.resolve(name)
	if err != nil {
		return nil, &SetupError{Name: name, Err: err}
	}
	cfg.Name = name

	s, err := Open(ctx, cfg, m.opts...)
	if err != nil {
		return nil, err
	}
	m.name = name
	m.stack = s
	return s, nil
}

// Initialized reports whether Initialize has succeeded.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stack != nil
}

// Name returns the configuration name the manager was initialized with.
func (m *Manager) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Stack returns the initialized Stack. Panics with ErrNotInitialized before
// Initialize has succeeded.
func (m *Manager) Stack() *Stack {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stack == nil {
		panic(ErrNotInitialized)
	}
	return m.stack
}
