package stack

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/roach88/graphstack/internal/config"
	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/store"
)

// Stack coordinates one store, its main context and the background contexts
// used for writes. Construct it once in the composition root and pass it to
// callers.
//
// Thread-safety model:
//   - SaveInBackground, DeleteAll, OnMain, SaveInMainContext, Delete,
//     DeleteInMainContext: safe from any goroutine
//   - Find and MainContext operations: main lane only
type Stack struct {
	cfg    Config
	store  *store.Store
	logger *slog.Logger
	ids    entity.IDGenerator

	main     *Context
	mainLane *lane

	ownsStore bool
	bgSeq     atomic.Int64
	closeOnce sync.Once
	closed    atomic.Bool
}

// New builds a Stack over an already-open store and starts the main lane.
// The caller keeps ownership of st.
func New(st *store.Store, cfg Config, opts ...Option) *Stack {
	cfg.validate()

	s := &Stack{
		cfg:    cfg,
		store:  st,
		logger: slog.Default(),
		ids:    entity.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("stack", cfg.Name)

	s.main = newContext(s, "main", RoleMain)
	s.mainLane = startLane("main", s.logger)

	s.logger.Info("stack opened",
		"store", st.Path(),
		"merge_policy", string(cfg.MergePolicy),
		"strict_confinement", cfg.StrictConfinement)
	return s
}

// Open opens the store a configuration names and builds a Stack that owns
// it. Failures are returned as *SetupError.
func Open(ctx context.Context, c config.Configuration, opts ...Option) (*Stack, error) {
	if c.Store == "" {
		return nil, &SetupError{Name: c.Name, Err: fmt.Errorf("store path is required")}
	}
	if dir := filepath.Dir(c.Store); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &SetupError{Name: c.Name, Err: fmt.Errorf("create store directory: %w", err)}
		}
	}

	st, err := store.Open(c.Store)
	if err != nil {
		return nil, &SetupError{Name: c.Name, Err: err}
	}
	if c.SchemaVersion > 0 {
		if err := st.EnsureModelVersion(ctx, c.SchemaVersion); err != nil {
			st.Close()
			return nil, &SetupError{Name: c.Name, Err: err}
		}
	}

	s := New(st, ConfigFrom(c), opts...)
	s.ownsStore = true
	return s, nil
}

// Config returns the validated configuration.
func (s *Stack) Config() Config {
	return s.cfg
}

// Store returns the underlying store.
func (s *Stack) Store() *store.Store {
	return s.store
}

// MainContext returns the main context. Use it only inside main-lane blocks.
//
// Panics with ErrNotInitialized on a nil or closed Stack: asking for the main
// context before setup is a programming error.
func (s *Stack) MainContext() *Context {
	if s == nil || s.closed.Load() {
		panic(ErrNotInitialized)
	}
	return s.main
}

// OnMain runs fn against the main context on the main lane and waits for it.
// Called with a context.Context from a running main block, fn runs inline.
// A panic in fn is re-raised on the caller.
func (s *Stack) OnMain(ctx context.Context, fn func(main *Context) error) error {
	main := s.MainContext()
	if ctx == nil {
		ctx = context.Background()
	}
	if s.onMainLane(ctx) {
		return main.within(ctx, fn)
	}
	if err := s.checkReentry(ctx, "OnMain"); err != nil {
		return err
	}

	var err error
	laneCtx := s.mainLane.mark(ctx)
	if lerr := s.mainLane.do(func() { err = main.within(laneCtx, fn) }); lerr != nil {
		return lerr
	}
	return err
}

// onMainLane reports whether ctx belongs to a main block that is running now.
func (s *Stack) onMainLane(ctx context.Context) bool {
	return s.mainLane.holds(ctx) && s.main.entered.Load() > 0
}

// checkReentry rejects a call made from inside a main block with a context
// other than the block's own. It would queue behind the block running it.
func (s *Stack) checkReentry(ctx context.Context, op string) error {
	if s.mainLane.running() && !s.onMainLane(ctx) {
		return s.violation(op, s.main.id, ErrForeignBlockContext)
	}
	return nil
}

// requireMain enforces that op runs inside a main block.
func (s *Stack) requireMain(ctx context.Context, op string) error {
	s.MainContext()
	if ctx == nil || !s.onMainLane(ctx) {
		return s.violation(op, s.main.id, ErrNotOnMainLane)
	}
	return nil
}

// violation reports a confinement violation: panic in strict mode,
// otherwise log and return it.
func (s *Stack) violation(op, contextID string, cause error) error {
	v := &ConfinementViolation{Op: op, Context: contextID, Err: cause}
	s.logger.Error("confinement violation", "op", op, "context", contextID, "error", cause)
	if s.cfg.StrictConfinement {
		panic(v)
	}
	return v
}

// newBackground creates a fresh background context attached to the store.
func (s *Stack) newBackground() *Context {
	id := fmt.Sprintf("background-%d", s.bgSeq.Add(1))
	return newContext(s, id, RoleBackground)
}

// Close stops the main lane after queued blocks finish, closes the main
// context and, if the stack opened the store, the store. Safe to call more
// than once. Must not be called from inside a main block.
func (s *Stack) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mainLane.stop()
		s.closed.Store(true)
		s.main.close()
		if s.ownsStore {
			err = s.store.Close()
		}
		s.logger.Info("stack closed")
	})
	return err
}
