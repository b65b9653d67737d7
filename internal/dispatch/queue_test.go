package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestQueue_StopBeforeStart verifies that calling Stop() on a queue
// that was never started does not panic and is a safe no-op.
func TestQueue_StopBeforeStart(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Enqueue(func() {})

	// this must not panic
	q.Stop()

	assert.Equal(t, 0, q.Len(), "held tasks should be discarded")
}

// TestQueue_StopTwice verifies that Stop() is idempotent and can be
// called multiple times without panic or deadlock.
func TestQueue_StopTwice(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Start(context.Background())

	q.Stop()
	q.Stop()
}

// TestQueue_StartAfterStop verifies that Start() after Stop() is a no-op.
func TestQueue_StartAfterStop(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Stop()
	q.Start(context.Background())

	assert.False(t, q.Enqueue(func() {}), "Enqueue() after Stop() should be rejected")
}

func TestQueue_RunsTasksInOrder(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Start(context.Background())
	defer q.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.Enqueue(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v, "task %d ran out of order", i)
	}
}

func TestQueue_HeldTasksRunOnStart(t *testing.T) {
	q := NewQueue(zap.NewNop())

	var ran atomic.Bool
	q.Enqueue(func() { ran.Store(true) })
	assert.Equal(t, 1, q.Len())
	assert.False(t, ran.Load(), "task must not run before Start()")

	q.Start(context.Background())
	defer q.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))
	assert.True(t, ran.Load())
}

func TestQueue_StopRunsBacklog(t *testing.T) {
	q := NewQueue(zap.NewNop())

	release := make(chan struct{})
	var count atomic.Int32
	q.Enqueue(func() { <-release })
	for i := 0; i < 10; i++ {
		q.Enqueue(func() { count.Add(1) })
	}
	q.Start(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	q.Stop()

	assert.Equal(t, int32(10), count.Load(), "Stop() should run queued tasks before returning")
}

func TestQueue_ContextCancelStopsQueue(t *testing.T) {
	q := NewQueue(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return !q.Enqueue(func() {})
	}, time.Second, 5*time.Millisecond, "queue should reject tasks once its context is cancelled")

	q.Stop()
}

func TestQueue_PanicIsRecovered(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	q := NewQueue(zap.New(core))
	q.Start(context.Background())
	defer q.Stop()

	var after atomic.Bool
	q.Enqueue(func() { panic("boom") })
	q.Enqueue(func() { after.Store(true) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))

	assert.True(t, after.Load(), "tasks after a panicking task should still run")
	entries := logs.FilterMessage("queued task panicked").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["panic"])
	assert.NotEmpty(t, entries[0].ContextMap()["correlation_id"])
}

func TestQueue_FlushAfterStop(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Start(context.Background())
	q.Stop()

	err := q.Flush(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestQueue_FlushHonoursContext(t *testing.T) {
	q := NewQueue(zap.NewNop())
	// never started, so the marker is never reached

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Flush(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	q.Stop()
}

func TestQueue_TaskMayEnqueue(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Start(context.Background())
	defer q.Stop()

	done := make(chan struct{})
	q.Enqueue(func() {
		q.Enqueue(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task enqueued from inside a task never ran")
	}
}

// TestQueue_ConcurrentEnqueue verifies that concurrent producers do not
// lose tasks. Run with: go test -race ./internal/dispatch/...
func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Start(context.Background())

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(func() { count.Add(1) })
			}
		}()
	}
	wg.Wait()
	q.Stop()

	assert.Equal(t, int32(1000), count.Load())
}

func TestQueue_StopFromTask(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Start(context.Background())

	var count atomic.Int32
	returned := make(chan struct{})
	q.Enqueue(func() {
		q.Stop()
		close(returned)
	})
	for i := 0; i < 5; i++ {
		q.Enqueue(func() { count.Add(1) })
	}

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Stop() called from a task never returned")
	}

	require.Eventually(t, func() bool {
		return count.Load() == 5
	}, time.Second, 5*time.Millisecond, "backlog should still run after the task returns")
	assert.False(t, q.Enqueue(func() {}), "Enqueue() after Stop() should be rejected")

	// a second Stop from outside waits for the worker and returns
	q.Stop()
}

func TestGoroutineID(t *testing.T) {
	id := goroutineID()
	require.NotZero(t, id)
	assert.Equal(t, id, goroutineID(), "same goroutine should report the same id")

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, id, <-other)
}
