package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStopped is returned by [Queue.Flush] when the queue no longer accepts tasks.
var ErrStopped = errors.New("dispatch: queue stopped")

// Queue runs tasks on a single background goroutine in FIFO order.
//
// Enqueue never blocks and never drops a task while the queue is open; the
// backlog grows as needed. Tasks enqueued before [Queue.Start] are held and
// run once the worker starts.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Queue struct {
	logger *zap.Logger

	mu      sync.Mutex
	tasks   []func()
	started bool
	stopped bool

	wake      chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	worker atomic.Uint64 // goroutine id of the running worker, 0 if none
}

// NewQueue creates a new [Queue]. It must be started with [Queue.Start]
// and stopped with [Queue.Stop].
//
// A nil logger disables logging.
func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends a task to the back of the queue.
//
// Returns false if the queue has been stopped; the task is discarded.
func (q *Queue) Enqueue(task func()) bool {
	if task == nil {
		return true
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	// a pending wake-up already covers this task
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Start launches the worker goroutine.
//
// Start is non-blocking. The worker runs until [Queue.Stop] is called or
// ctx is cancelled; either way, tasks already queued at that point are
// run before the worker exits.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		defer q.closeOnce.Do(func() { close(q.done) })

		q.worker.Store(goroutineID())
		defer q.worker.Store(0)

		for {
			q.runPending()

			select {
			case <-runCtx.Done():
				q.mu.Lock()
				q.stopped = true
				q.mu.Unlock()

				q.runPending()
				return
			case <-q.wake:
			}
		}
	}()
}

// Stop closes the queue to new tasks, lets the worker finish the backlog
// and waits for it to exit.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start discards any held tasks. Called from inside a task, Stop does not
// wait: the worker runs the backlog once the calling task returns.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
	}
	if q.cancel != nil {
		q.cancel()
	}
	started := q.started
	discarded := 0
	if !started {
		discarded = len(q.tasks)
		q.tasks = nil
	}
	q.mu.Unlock()

	if started && q.onWorker() {
		return
	}

	q.wg.Wait()
	q.closeOnce.Do(func() { close(q.done) })

	if discarded > 0 {
		q.logger.Debug("queue stopped before start, tasks discarded",
			zap.Int("discarded", discarded),
		)
	}
}

// Flush blocks until every task enqueued before the call has run.
//
// Flush must not be called from inside a task: the marker it waits for is
// queued behind the calling task and the call would only return when ctx
// ends. Returns [ErrStopped] if the queue is closed, or ctx.Err() if ctx
// ends first.
func (q *Queue) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if !q.Enqueue(func() { close(reached) }) {
		return ErrStopped
	}

	select {
	case <-reached:
		return nil
	case <-q.done:
		// the worker drains before exiting, so a marker that ran is visible here
		select {
		case <-reached:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runPending pops and runs tasks until the backlog is empty.
func (q *Queue) runPending() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(task)
	}
}

// run calls a task with panic recovery.
// A panicking task is logged with a correlation ID and the worker moves on.
func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued task panicked",
				zap.String("correlation_id", uuid.NewString()),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	task()
}

// onWorker reports whether the caller is the worker goroutine.
func (q *Queue) onWorker() bool {
	id := q.worker.Load()
	return id != 0 && id == goroutineID()
}

// goroutineID parses the current goroutine's id from its stack header,
// which starts with "goroutine <id> [".
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
