package stack

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// task is one block queued on a lane.
type task struct {
	fn   func()
	done chan struct{}

	// panicked holds a value recovered from fn, re-raised on the caller.
	panicked any
}

// taskQueue is a thread-safe FIFO queue for lane tasks.
//
// The queue uses a channel for signaling so the lane loop can wait without
// polling.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []*task
	closed bool
	signal chan struct{} // Signals task availability (buffered, size 1)
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]*task, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t *task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)

	// Non-blocking: a buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front task without blocking.
func (q *taskQueue) TryDequeue() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	q.tasks[0] = nil // release for GC
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Wait returns a channel that signals when tasks may be available.
// The channel is closed when the queue is closed.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// drained reports whether the queue is closed and empty.
func (q *taskQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.tasks) == 0
}

// Close stops accepting tasks and wakes the lane loop.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// laneKey marks a context.Context as belonging to a block running on a lane.
type laneKey struct{}

// lane runs queued blocks one at a time on a single goroutine.
//
// CRITICAL: blocks never run concurrently with each other, so a context
// confined to the lane is only ever touched by one block at a time.
type lane struct {
	name    string
	queue   *taskQueue
	stopped chan struct{}
	logger  *slog.Logger

	// gid is the id of the goroutine running the lane loop.
	gid atomic.Uint64
}

func startLane(name string, logger *slog.Logger) *lane {
	l := &lane{
		name:    name,
		queue:   newTaskQueue(),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	go l.run()
	return l
}

// run is the lane loop. Tasks queued before Close still run.
func (l *lane) run() {
	defer close(l.stopped)
	l.gid.Store(goroutineID())
	l.logger.Debug("lane starting", "lane", l.name)

	for {
		if t, ok := l.queue.TryDequeue(); ok {
			l.exec(t)
			continue
		}
		if l.queue.drained() {
			l.logger.Debug("lane stopping", "lane", l.name)
			return
		}
		<-l.queue.Wait()
	}
}

func (l *lane) exec(t *task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.panicked = r
		}
	}()
	t.fn()
}

// do runs fn on the lane and waits for it. A panic in fn is re-raised on
// the calling goroutine; the lane keeps running.
func (l *lane) do(fn func()) error {
	t := &task{fn: fn, done: make(chan struct{})}
	if !l.queue.Enqueue(t) {
		return ErrStackClosed
	}
	if n := l.queue.Len(); n > 1 {
		l.logger.Debug("lane busy", "lane", l.name, "pending", n)
	}
	<-t.done
	if t.panicked != nil {
		panic(t.panicked)
	}
	return nil
}

// mark returns ctx tagged as running on l.
func (l *lane) mark(ctx context.Context) context.Context {
	return context.WithValue(ctx, laneKey{}, l)
}

// holds reports whether ctx was handed out by a block running on l.
func (l *lane) holds(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	got, _ := ctx.Value(laneKey{}).(*lane)
	return got == l
}

// running reports whether the caller is the lane's own goroutine, i.e. code
// inside a block. Such a caller must not queue on the lane: it would wait on
// itself.
func (l *lane) running() bool {
	gid := l.gid.Load()
	return gid != 0 && gid == goroutineID()
}

// goroutineID parses the current goroutine's id from its stack header,
// "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i > 0 {
		header = header[:i]
	}
	id, err := strconv.ParseUint(string(header), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// stop closes the queue and waits for queued tasks to finish.
func (l *lane) stop() {
	l.queue.Close()
	<-l.stopped
}
