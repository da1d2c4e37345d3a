package store

import "sync/atomic"

// Clock is the store's monotonic logical clock for commit ordering.
//
// Every commit is stamped with a strictly increasing seq from this clock.
// Safe for concurrent use, although Commit only calls Next under its mutex.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
// Used on open to continue from the last committed seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// rewind undoes a Next whose commit rolled back, so seq stays gapless.
// Only valid while the caller still holds the commit mutex.
func (c *Clock) rewind(seq int64) {
	c.seq.CompareAndSwap(seq, seq-1)
}
