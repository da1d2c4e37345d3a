package stack

import (
	"context"
	"errors"
)

// Save commits the context's pending changes in one all-or-nothing
// transaction. A context with nothing pending does not touch the store.
//
// On failure the changes stay pending and a *CommitError is returned; the
// caller decides whether to retry or Rollback. A background context's
// committed changes are merged into the main context when its work returns.
func (c *Context) Save() error {
	if err := c.check("Save"); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.commitLocked()
	return err
}

func (c *Context) commitLocked() (changes, error) {
	cs := c.changeSetLocked()
	if cs.Empty() {
		return changes{}, nil
	}

	// Work that started runs to completion: cancellation stops reads, not
	// the commit that ends the work.
	res, err := c.stack.store.Commit(context.WithoutCancel(c.ioLocked()), cs)
	if err != nil {
		c.stack.logger.Error("commit failed", "context", c.id, "changes", cs.Size(), "error", err)
		return changes{}, &CommitError{Context: c.id, Err: err}
	}

	ch := newChanges(cs, res)
	c.applyCommitLocked(ch)
	if c.role == RoleBackground {
		c.published = append(c.published, ch)
	}
	c.stack.logger.Debug("committed",
		"context", c.id,
		"seq", res.Seq,
		"inserted", len(cs.Inserted),
		"updated", len(cs.Updated),
		"deleted", len(res.Deleted))
	return ch, nil
}

// SaveInBackground runs work against a fresh background context on its own
// goroutine, commits what the work left pending, and merges every commit the
// context made into the main context before returning. When it returns nil,
// the main context already reflects the written state.
//
// Outcomes:
//   - work returns an error: pending changes are discarded and a *WorkError
//     is returned (a *CommitError from an explicit Save is returned as is)
//   - work panics: the context is discarded and the panic is re-raised here
//   - the final commit fails: a *CommitError is returned, nothing is merged
//     from it
//
// ctx is honored before work starts and by the store reads work performs;
// once started, work runs to completion. Calls made from a main block must
// pass the block's context.Context (main.Ctx()) so the merge runs inline.
func (s *Stack) SaveInBackground(ctx context.Context, work func(bg *Context) error) error {
	_, err := s.runBackground(ctx, "SaveInBackground", work)
	return err
}

// backgroundResult is what a background lane hands back to its caller.
type backgroundResult struct {
	published []changes
	err       error
	panicked  any
}

// runBackground is the save protocol shared by SaveInBackground and
// DeleteAll. It returns every change set the context committed.
func (s *Stack) runBackground(ctx context.Context, op string, work func(bg *Context) error) ([]changes, error) {
	s.MainContext()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The merge that follows the work needs the main lane.
	if err := s.checkReentry(ctx, op); err != nil {
		return nil, err
	}

	bg := s.newBackground()
	s.logger.Debug("background context created", "op", op, "context", bg.id)

	done := make(chan backgroundResult, 1)
	go func() {
		var res backgroundResult
		defer func() {
			if r := recover(); r != nil {
				res.panicked = r
			}
			bg.mu.Lock()
			bg.rollbackLocked()
			res.published = bg.published
			bg.mu.Unlock()
			bg.close()
			done <- res
		}()

		if err := bg.within(ctx, work); err != nil {
			var commitErr *CommitError
			if errors.As(err, &commitErr) {
				res.err = err
			} else {
				res.err = &WorkError{Err: err}
			}
			return
		}

		bg.mu.Lock()
		defer bg.mu.Unlock()
		if _, err := bg.commitLocked(); err != nil {
			res.err = err
		}
	}()

	res := <-done

	// Commits that reached the store are merged even when the work failed
	// afterwards: the store already holds them.
	if len(res.published) > 0 {
		if err := s.mergeIntoMain(ctx, bg.id, res.published); err != nil && res.err == nil {
			res.err = err
		}
	}

	if res.panicked != nil {
		panic(res.panicked)
	}
	if res.err != nil {
		s.logger.Debug("background work failed", "op", op, "context", bg.id, "error", res.err)
		return res.published, res.err
	}
	return res.published, nil
}

// mergeIntoMain applies committed change sets to the main context on the
// main lane and waits until it is done.
func (s *Stack) mergeIntoMain(ctx context.Context, from string, published []changes) error {
	return s.OnMain(ctx, func(main *Context) error {
		main.mu.Lock()
		defer main.mu.Unlock()

		for _, ch := range published {
			if ch.empty() {
				continue
			}
			stats := main.mergeLocked(ch, s.cfg.MergePolicy)
			s.logger.Debug("merged into main",
				"from", from,
				"seq", ch.seq,
				"refreshed", stats.refreshed,
				"stale", stats.stale,
				"invalidated", stats.invalidated)
		}
		return nil
	})
}

// SaveInMainContext runs work against the main context on the main lane and
// commits the main context in place. No merge is needed.
//
// If work returns an error the main context's pending changes are rolled
// back and a *WorkError is returned. If the commit fails the pending changes
// are rolled back too and the *CommitError is returned.
func (s *Stack) SaveInMainContext(ctx context.Context, work func(main *Context) error) error {
	return s.OnMain(ctx, func(main *Context) error {
		if err := work(main); err != nil {
			main.mu.Lock()
			main.rollbackLocked()
			main.mu.Unlock()

			var commitErr *CommitError
			if errors.As(err, &commitErr) {
				return err
			}
			return &WorkError{Err: err}
		}

		main.mu.Lock()
		defer main.mu.Unlock()
		if _, err := main.commitLocked(); err != nil {
			main.rollbackLocked()
			return err
		}
		return nil
	})
}
