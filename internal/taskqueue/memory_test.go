package taskqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"stevedore/internal/apperrors"
	"stevedore/internal/testutil"
)

type countingHandler struct {
	calls    atomic.Int64
	failures int64 // fail the first N calls
	err      error
	done     chan struct{}
}

func (h *countingHandler) Process(ctx context.Context, taskID string) error {
	n := h.calls.Add(1)
	if n <= h.failures {
		return h.err
	}
	if h.done != nil {
		select {
		case h.done <- struct{}{}:
		default:
		}
	}
	return nil
}

func newQueue(t *testing.T, handler Handler) *MemoryQueue {
	t.Helper()
	q := NewMemory(MemoryConfig{BufferSize: 16, Workers: 2}, map[string]Handler{"run_docker_worker": handler}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		q.Close(ctx)
	})
	return q
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	testutil.MustWaitFor(t, cond,
		testutil.WithTimeout(3*time.Second), testutil.WithInterval(5*time.Millisecond))
}

func TestQueueProcessesTask(t *testing.T) {
	t.Parallel()
	handler := &countingHandler{done: make(chan struct{}, 1)}
	q := newQueue(t, handler)

	if err := q.Enqueue(&Task{ID: "t1", Type: "run_docker_worker"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	<-handler.done
	waitFor(t, func() bool { return q.Stats().Processed == 1 })
}

func TestQueueRetriesUnclassifiedErrors(t *testing.T) {
	t.Parallel()
	handler := &countingHandler{failures: 2, err: errors.New("transient"), done: make(chan struct{}, 1)}
	q := newQueue(t, handler)

	q.Enqueue(&Task{ID: "t1", Type: "run_docker_worker"})

	<-handler.done
	waitFor(t, func() bool { return q.Stats().Processed == 1 })
	if got := handler.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if q.Stats().RetriesTotal != 2 {
		t.Errorf("RetriesTotal = %d, want 2", q.Stats().RetriesTotal)
	}
}

func TestQueueDoesNotRetryClassifiedErrors(t *testing.T) {
	t.Parallel()
	handler := &countingHandler{failures: 100, err: apperrors.NotFound("task", "t1")}
	q := newQueue(t, handler)

	q.Enqueue(&Task{ID: "t1", Type: "run_docker_worker"})

	waitFor(t, func() bool { return q.Stats().Failed == 1 })
	if got := handler.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", got)
	}
}

func TestQueueRequeuesOnRequestedDelay(t *testing.T) {
	t.Parallel()
	appErr := apperrors.AsError(apperrors.WithCode("HOST_CONNECTION_TIMEOUT", "timeout", nil, nil))
	appErr.RequeueDelay = 10 * time.Millisecond
	handler := &countingHandler{failures: 1, err: appErr, done: make(chan struct{}, 1)}
	q := newQueue(t, handler)

	q.Enqueue(&Task{ID: "t1", Type: "run_docker_worker"})

	<-handler.done
	waitFor(t, func() bool { return q.Stats().Processed == 1 })
	if q.Stats().Requeued != 1 {
		t.Errorf("Requeued = %d, want 1", q.Stats().Requeued)
	}
}

func TestQueueRejectsUnknownType(t *testing.T) {
	t.Parallel()
	q := newQueue(t, &countingHandler{})

	err := q.Enqueue(&Task{ID: "t1", Type: "mystery"})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("err = %v, want ErrNoHandler", err)
	}
}

func TestQueueDropsWhenBufferFull(t *testing.T) {
	t.Parallel()
	blocker := make(chan struct{})
	handler := handlerFunc(func(ctx context.Context, taskID string) error {
		<-blocker
		return nil
	})
	q := NewMemory(MemoryConfig{BufferSize: 1, Workers: 1}, map[string]Handler{"run_docker_worker": handler}, nil)
	defer func() {
		close(blocker)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		q.Close(ctx)
	}()

	// One task occupies the worker, one fills the buffer; further enqueues
	// must drop.
	q.Enqueue(&Task{ID: "a", Type: "run_docker_worker"})
	waitFor(t, func() bool { return q.Stats().QueueDepth == 0 })
	if err := q.Enqueue(&Task{ID: "b", Type: "run_docker_worker"}); err != nil {
		t.Fatalf("Enqueue(b) error = %v", err)
	}

	if err := q.Enqueue(&Task{ID: "c", Type: "run_docker_worker"}); !errors.Is(err, ErrBufferFull) {
		t.Errorf("err = %v, want ErrBufferFull", err)
	}
	if q.Stats().Dropped == 0 {
		t.Error("Dropped counter not incremented")
	}
}

type handlerFunc func(ctx context.Context, taskID string) error

func (f handlerFunc) Process(ctx context.Context, taskID string) error { return f(ctx, taskID) }

func TestQueueCloseDrains(t *testing.T) {
	t.Parallel()
	handler := &countingHandler{}
	q := NewMemory(MemoryConfig{BufferSize: 16, Workers: 1}, map[string]Handler{"run_docker_worker": handler}, nil)

	for i := 0; i < 5; i++ {
		q.Enqueue(&Task{ID: "t", Type: "run_docker_worker"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := q.Stats().Processed; got != 5 {
		t.Errorf("Processed = %d, want 5 after drain", got)
	}

	if err := q.Enqueue(&Task{ID: "late", Type: "run_docker_worker"}); err == nil {
		t.Error("Enqueue after Close must fail")
	}
}
