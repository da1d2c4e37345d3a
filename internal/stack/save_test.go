package stack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/query"
	"github.com/roach88/graphstack/internal/store"
)

func storeCount(t *testing.T, s *Stack, kind entity.Kind) int {
	t.Helper()
	n, err := s.Store().Count(context.Background(), query.BuildFetch(kind, nil, 0))
	require.NoError(t, err)
	return n
}

func TestSaveInBackground_ReadAfterWrite(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	a := insertWidget(t, s, "bolt", 1)

	// Register the object in main before the update lands.
	before := find(t, s, "Widget", nil)
	require.Len(t, before, 1)
	mainObj := before[0]
	assert.Equal(t, int64(1), mainObj.Version())

	err := s.SaveInBackground(ctx, func(bg *Context) error {
		obj, err := bg.Object(a.Ref())
		if err != nil {
			return err
		}
		return bg.Set(obj, "qty", entity.Int(9))
	})
	require.NoError(t, err)

	// Merged synchronously: the main instance already reflects the write.
	assert.Equal(t, entity.Int(9), mainObj.Get("qty"))
	assert.Equal(t, int64(2), mainObj.Version())

	after := find(t, s, "Widget", nil)
	require.Len(t, after, 1)
	assert.Same(t, mainObj, after[0], "one instance per identity per context")
}

func TestSaveInBackground_NoChangesDoesNotCommit(t *testing.T) {
	s := newTestStack(t)

	require.NoError(t, s.SaveInBackground(context.Background(), func(*Context) error { return nil }))
	assert.Zero(t, s.Store().LastSeq())
}

func TestSaveInBackground_WorkErrorCommitsNothing(t *testing.T) {
	s := newTestStack(t)
	boom := errors.New("boom")

	err := s.SaveInBackground(context.Background(), func(bg *Context) error {
		if _, err := bg.Insert("Widget", widgetAttrs("bolt", 1)); err != nil {
			return err
		}
		return boom
	})

	var workErr *WorkError
	require.True(t, errors.As(err, &workErr))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, storeCount(t, s, "Widget"))
}

func TestSaveInBackground_PanicIsReraised(t *testing.T) {
	s := newTestStack(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.SaveInBackground(context.Background(), func(bg *Context) error {
			_, _ = bg.Insert("Widget", widgetAttrs("bolt", 1))
			panic("boom")
		})
	})
	assert.Zero(t, storeCount(t, s, "Widget"))
}

func TestSaveInBackground_CanceledBeforeStart(t *testing.T) {
	s := newTestStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.SaveInBackground(ctx, func(*Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSaveInBackground_CommitErrorCarriesCause(t *testing.T) {
	s := newTestStack(t)
	a := insertWidget(t, s, "bolt", 1)

	err := s.SaveInBackground(context.Background(), func(bg *Context) error {
		obj, err := bg.Object(a.Ref())
		if err != nil {
			return err
		}
		// Another writer deletes the entity under us.
		if _, err := s.Store().Commit(context.Background(), store.ChangeSet{
			ContextID: "other",
			Deleted:   []entity.Ref{a.Ref()},
		}); err != nil {
			return err
		}
		return bg.Set(obj, "qty", entity.Int(2))
	})

	var commitErr *CommitError
	require.True(t, errors.As(err, &commitErr), "got %T: %v", err, err)
	assert.Contains(t, commitErr.Context, "background-")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestSaveInBackground_ExplicitSaveIsMergedEvenIfWorkFails(t *testing.T) {
	s := newTestStack(t)
	boom := errors.New("boom")

	err := s.SaveInBackground(context.Background(), func(bg *Context) error {
		if _, err := bg.Insert("Widget", widgetAttrs("kept", 1)); err != nil {
			return err
		}
		if err := bg.Save(); err != nil {
			return err
		}
		if _, err := bg.Insert("Widget", widgetAttrs("dropped", 2)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found := find(t, s, "Widget", nil)
	require.Len(t, found, 1)
	assert.Equal(t, entity.String("kept"), found[0].Get("name"))
}

func TestSaveInBackground_ConcurrentDisjointSaves(t *testing.T) {
	s := newTestStack(t)
	const n = 12

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.SaveInBackground(context.Background(), func(bg *Context) error {
				_, err := bg.Insert("Widget", widgetAttrs(fmt.Sprintf("w%d", i), int64(i)))
				return err
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, find(t, s, "Widget", nil), n)
}

func TestSaveInBackground_ConcurrentUpdatesLeaveNewestVersion(t *testing.T) {
	s := newTestStack(t)
	a := insertWidget(t, s, "bolt", 0)
	mainObj := find(t, s, "Widget", nil)[0]

	const n = 8
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SaveInBackground(context.Background(), func(bg *Context) error {
				obj, err := bg.Object(a.Ref())
				if err != nil {
					return err
				}
				return bg.Set(obj, "qty", entity.Int(int64(i)))
			}))
		}(i)
	}
	wg.Wait()

	row, err := s.Store().Load(context.Background(), a.Ref())
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), row.Version)
	assert.Equal(t, row.Version, mainObj.Version(), "merges never move an object backwards")
	assert.Equal(t, row.Attributes.Get("qty"), mainObj.Get("qty"))
}

func TestSaveInBackground_FromMainBlock(t *testing.T) {
	s := newTestStack(t)

	err := s.OnMain(context.Background(), func(main *Context) error {
		if err := s.SaveInBackground(main.Ctx(), func(bg *Context) error {
			_, err := bg.Insert("Widget", widgetAttrs("bolt", 1))
			return err
		}); err != nil {
			return err
		}
		found, err := s.Find(main.Ctx(), "Widget", nil, 0)
		if err != nil {
			return err
		}
		assert.Len(t, found, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestBackgroundContexts_ReadCommittedStateOnly(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	require.NoError(t, s.OnMain(ctx, func(main *Context) error {
		_, err := main.Insert("Widget", widgetAttrs("unsaved", 1))
		return err
	}))

	err := s.SaveInBackground(ctx, func(bg *Context) error {
		objs, err := bg.Fetch(query.BuildFetch("Widget", nil, 0))
		if err != nil {
			return err
		}
		assert.Empty(t, objs, "background contexts never see unsaved main edits")
		return nil
	})
	require.NoError(t, err)
}

func TestSaveInMainContext(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	err := s.SaveInMainContext(ctx, func(main *Context) error {
		_, err := main.Insert("Widget", widgetAttrs("bolt", 1))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, storeCount(t, s, "Widget"))
	assert.False(t, s.MainContext().HasChanges())

	boom := errors.New("boom")
	err = s.SaveInMainContext(ctx, func(main *Context) error {
		if _, err := main.Insert("Widget", widgetAttrs("nut", 2)); err != nil {
			return err
		}
		return boom
	})
	var workErr *WorkError
	require.True(t, errors.As(err, &workErr))
	assert.Equal(t, 1, storeCount(t, s, "Widget"))
	assert.False(t, s.MainContext().HasChanges(), "failed work is rolled back")
}
