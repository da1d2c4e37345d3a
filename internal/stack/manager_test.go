package stack

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphstack/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(config.FileResolver("", t.TempDir()), WithLogger(quietLogger()))
	t.Cleanup(func() {
		if m.Initialized() {
			m.Stack().Close()
		}
	})
	return m
}

func TestManager_Initialize(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.Initialized())

	s, err := m.Initialize(context.Background(), "widgets")
	require.NoError(t, err)
	assert.True(t, m.Initialized())
	assert.Equal(t, "widgets", m.Name())
	assert.Same(t, s, m.Stack())
	assert.Equal(t, "widgets", s.Config().Name)

	again, err := m.Initialize(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Same(t, s, again, "initialize is idempotent for the same name")
}

func TestManager_InitializeWithAnotherName(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Initialize(context.Background(), "widgets")
	require.NoError(t, err)

	_, err = m.Initialize(context.Background(), "gadgets")
	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "gadgets", setupErr.Name)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, "widgets", m.Name())
}

func TestManager_StackBeforeInitialize(t *testing.T) {
	m := newTestManager(t)
	assert.PanicsWithValue(t, ErrNotInitialized, func() { m.Stack() })
}

func TestManager_ResolverError(t *testing.T) {
	boom := errors.New("no such configuration")
	m := NewManager(func(string) (config.Configuration, error) {
		return config.Configuration{}, boom
	})

	_, err := m.Initialize(context.Background(), "widgets")
	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.Initialized())
}

func TestManager_StoreOpenError(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(func(name string) (config.Configuration, error) {
		c := config.Default(name, dir)
		c.Store = dir // a directory is not a database file
		return c, nil
	}, WithLogger(quietLogger()))

	_, err := m.Initialize(context.Background(), "widgets")
	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr), "got %T: %v", err, err)
	assert.False(t, m.Initialized())
}

func TestOpen_SchemaVersion(t *testing.T) {
	c := config.Default("widgets", t.TempDir())
	c.SchemaVersion = 2

	s, err := Open(context.Background(), c, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	c.SchemaVersion = 1
	_, err = Open(context.Background(), c, WithLogger(quietLogger()))
	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "widgets", setupErr.Name)
}

func TestOpen_RequiresStorePath(t *testing.T) {
	_, err := Open(context.Background(), config.Configuration{Name: "widgets"})
	var setupErr *SetupError
	assert.True(t, errors.As(err, &setupErr))
}

func TestOpen_CreatesStoreDirectory(t *testing.T) {
	c := config.Default("widgets", filepath.Join(t.TempDir(), "nested", "dir"))

	s, err := Open(context.Background(), c, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer s.Close()
	assert.FileExists(t, c.Store)
}
