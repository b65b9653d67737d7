package kvstore

import (
	"context"
	"errors"
	"sync"

	"github.com/jpalmerr/kvstore/internal/dispatch"
	"go.uber.org/zap"
)

// ErrSchedulerClosed is returned by [AsyncScheduler.Flush] after Close.
var ErrSchedulerClosed = errors.New("kvstore: scheduler closed")

// Scheduler defers a task to a later turn.
//
// Schedule must return before task runs; running it inline would re-enter
// subscriber code from inside Save. Tasks handed to one Scheduler must run
// in the order they were scheduled, which is what gives per-key FIFO
// delivery.
type Scheduler interface {
	Schedule(task func())
}

// Flusher is implemented by schedulers that can wait for their backlog.
type Flusher interface {
	// Flush returns once every task scheduled before the call has run.
	Flush(ctx context.Context) error
}

// SchedulerFunc adapts a function to the [Scheduler] interface.
//
// The function must not run task before it returns. Save schedules while
// holding the store's lock, so running task inline deadlocks the store.
type SchedulerFunc func(task func())

// Schedule calls f(task).
func (f SchedulerFunc) Schedule(task func()) {
	f(task)
}

// AsyncScheduler runs tasks on a background goroutine in FIFO order.
//
// It is the default scheduler of [New]. The backlog is unbounded: Schedule
// never blocks the caller. Tasks scheduled after [AsyncScheduler.Close]
// are dropped.
type AsyncScheduler struct {
	queue  *dispatch.Queue
	logger *zap.Logger
}

// NewAsyncScheduler creates a started [AsyncScheduler].
//
// A nil logger disables logging. Call [AsyncScheduler.Close] when done.
func NewAsyncScheduler(logger *zap.Logger) *AsyncScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := dispatch.NewQueue(logger)
	q.Start(context.Background())
	return &AsyncScheduler{queue: q, logger: logger}
}

// Schedule appends task to the queue.
func (s *AsyncScheduler) Schedule(task func()) {
	if !s.queue.Enqueue(task) {
		s.logger.Warn("scheduler closed, task dropped")
	}
}

// Pending returns the number of tasks waiting to run.
func (s *AsyncScheduler) Pending() int {
	return s.queue.Len()
}

// Flush blocks until every task scheduled before the call has run.
//
// Flush must not be called from a subscriber callback.
func (s *AsyncScheduler) Flush(ctx context.Context) error {
	err := s.queue.Flush(ctx)
	if errors.Is(err, dispatch.ErrStopped) {
		return ErrSchedulerClosed
	}
	return err
}

// Close runs the remaining backlog and stops the worker. It is idempotent.
//
// Called from a task running on the worker, Close returns at once and the
// worker finishes the backlog after that task returns.
func (s *AsyncScheduler) Close() error {
	s.queue.Stop()
	return nil
}

// ManualScheduler queues tasks until the caller drains them.
//
// Nothing runs until [ManualScheduler.Step] or [ManualScheduler.Drain] is
// called, which makes delivery timing fully deterministic in tests.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

// NewManualScheduler creates an empty [ManualScheduler].
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule appends task to the queue.
func (m *ManualScheduler) Schedule(task func()) {
	if task == nil {
		return
	}
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
}

// Pending returns the number of queued tasks.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Step runs the oldest queued task. It reports whether a task ran.
func (m *ManualScheduler) Step() bool {
	m.mu.Lock()
	if len(m.tasks) == 0 {
		m.mu.Unlock()
		return false
	}
	task := m.tasks[0]
	m.tasks[0] = nil
	m.tasks = m.tasks[1:]
	m.mu.Unlock()

	task()
	return true
}

// Drain runs tasks until the queue is empty, including tasks scheduled by
// the tasks it runs. It returns the number of tasks run.
func (m *ManualScheduler) Drain() int {
	n := 0
	for m.Step() {
		n++
	}
	return n
}

// Flush drains the queue on the calling goroutine.
func (m *ManualScheduler) Flush(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !m.Step() {
			return nil
		}
	}
}
