package stack

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStack builds a Stack over a fresh store with deterministic IDs
// ("w-0001", "w-0002", ...). tweak may adjust the config.
func newTestStack(t *testing.T, tweak ...func(*Config)) *Stack {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "stack.db"))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Name = t.Name()
	for _, fn := range tweak {
		fn(&cfg)
	}

	s := New(st, cfg,
		WithLogger(quietLogger()),
		WithIDGenerator(entity.NewSequenceGenerator("w")),
	)
	t.Cleanup(func() {
		s.Close()
		st.Close()
	})
	return s
}

func lenient(c *Config) { c.StrictConfinement = false }

func widgetAttrs(name string, qty int64) entity.Attributes {
	return entity.Attributes{"name": entity.String(name), "qty": entity.Int(qty)}
}

// insertWidget commits one Widget through a background save and returns its
// (now stale) background instance.
func insertWidget(t *testing.T, s *Stack, name string, qty int64) *Object {
	t.Helper()
	var obj *Object
	err := s.SaveInBackground(context.Background(), func(bg *Context) error {
		var err error
		obj, err = bg.Insert("Widget", widgetAttrs(name, qty))
		return err
	})
	require.NoError(t, err)
	return obj
}

// find runs Stack.Find from a main block.
func find(t *testing.T, s *Stack, kind entity.Kind, pred predicate.Predicate) []*Object {
	t.Helper()
	var out []*Object
	err := s.OnMain(context.Background(), func(main *Context) error {
		var err error
		out, err = s.Find(main.Ctx(), kind, pred, 0)
		return err
	})
	require.NoError(t, err)
	return out
}

// storeUpdate is a change set that rewrites one row outside any context.
func storeUpdate(row store.Row) store.ChangeSet {
	return store.ChangeSet{ContextID: "external", Updated: []store.Row{row}}
}

func refs(objs []*Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Ref().String()
	}
	return out
}

// requireViolation asserts that fn panics with a *ConfinementViolation
// caused by cause.
func requireViolation(t *testing.T, cause error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a confinement violation panic")
		v, ok := r.(*ConfinementViolation)
		require.True(t, ok, "panic value %T: %v", r, r)
		assert.ErrorIs(t, v, cause)
	}()
	fn()
}
