package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"stevedore/internal/apperrors"
	"stevedore/pkg/backoff"
)

// MemoryQueue is an in-memory async task queue.
// Tasks are queued in a bounded channel and processed by a worker pool.
// If the buffer is full, tasks are dropped (logged + metric incremented).
type MemoryQueue struct {
	queue    chan *Task
	handlers map[string]Handler
	config   MemoryConfig
	logger   *slog.Logger
	metrics  MetricsRecorder

	// Internal counters (for Stats())
	queued       atomic.Int64
	processed    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// MetricsRecorder is an optional interface for recording queue metrics.
type MetricsRecorder interface {
	RecordTaskProcessed(ctx context.Context, taskType string, durationSeconds float64)
	RecordTaskFailed(ctx context.Context, taskType string)
	RecordTaskDropped(ctx context.Context)
	RecordTaskRequeued(ctx context.Context)
	RecordTaskQueueSize(ctx context.Context, size int64)
}

// NewMemory creates a new in-memory queue delivering to the given handlers,
// keyed by task type.
func NewMemory(cfg MemoryConfig, handlers map[string]Handler, metrics MetricsRecorder) *MemoryQueue {
	cfg = cfg.withDefaults()

	q := &MemoryQueue{
		queue:    make(chan *Task, cfg.BufferSize),
		handlers: handlers,
		config:   cfg,
		logger:   slog.With("component", "taskqueue"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	// Start workers
	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.worker()
	}

	// Start queue size reporter if metrics enabled
	if metrics != nil {
		go q.reportQueueSize()
	}

	q.logger.Info("Task queue started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return q
}

// reportQueueSize periodically reports the queue size metric.
func (q *MemoryQueue) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.shutdown:
			return
		case <-ticker.C:
			q.metrics.RecordTaskQueueSize(context.Background(), int64(len(q.queue)))
		}
	}
}

// Enqueue queues a task for async processing.
func (q *MemoryQueue) Enqueue(task *Task) error {
	if q.closed.Load() {
		return fmt.Errorf("task queue is closed")
	}
	if _, ok := q.handlers[task.Type]; !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, task.Type)
	}

	select {
	case q.queue <- task:
		q.queued.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		if q.metrics != nil {
			q.metrics.RecordTaskDropped(context.Background())
		}
		q.logger.Warn("Task dropped, buffer full", "taskId", task.ID, "type", task.Type)
		return ErrBufferFull
	}
}

// Stats returns current queue statistics.
func (q *MemoryQueue) Stats() Stats {
	return Stats{
		QueueDepth:   len(q.queue),
		Queued:       q.queued.Load(),
		Processed:    q.processed.Load(),
		Failed:       q.failed.Load(),
		Dropped:      q.dropped.Load(),
		Requeued:     q.requeued.Load(),
		RetriesTotal: q.retriesTotal.Load(),
	}
}

// Close gracefully shuts down the queue.
func (q *MemoryQueue) Close(ctx context.Context) error {
	if q.closed.Swap(true) {
		return nil // already closed
	}

	q.logger.Info("Task queue shutting down", "queued", len(q.queue))

	// Signal workers to stop
	close(q.shutdown)

	// Wait for workers with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Task queue shutdown complete",
			"processed", q.processed.Load(),
			"failed", q.failed.Load(),
			"dropped", q.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		q.logger.Warn("Task queue shutdown timed out", "remaining", len(q.queue))
		return ctx.Err()
	}
}

// worker processes tasks from the queue.
func (q *MemoryQueue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.shutdown:
			// Drain remaining tasks before exiting
			q.drainQueue()
			return
		case task := <-q.queue:
			q.process(task)
		}
	}
}

// drainQueue processes remaining tasks after shutdown signal.
func (q *MemoryQueue) drainQueue() {
	for {
		select {
		case task := <-q.queue:
			q.process(task)
		default:
			return // queue empty
		}
	}
}

// process runs one task through its handler with retry. A handler error
// carrying a requeue delay puts the task back on the queue after the delay
// instead of retrying inline.
func (q *MemoryQueue) process(task *Task) {
	handler := q.handlers[task.Type]

	ctx, cancel := context.WithTimeout(context.Background(), q.config.ProcessTimeout)
	defer cancel()

	start := time.Now()
	err := q.processWithRetry(ctx, handler, task)
	if err == nil {
		q.processed.Add(1)
		if q.metrics != nil {
			q.metrics.RecordTaskProcessed(ctx, task.Type, time.Since(start).Seconds())
		}
		return
	}

	if appErr := apperrors.AsError(err); appErr != nil && appErr.RequeueDelay > 0 {
		q.requeue(task, appErr.RequeueDelay)
		return
	}

	q.failed.Add(1)
	if q.metrics != nil {
		q.metrics.RecordTaskFailed(ctx, task.Type)
	}
	q.logger.Warn("Task processing failed", "taskId", task.ID, "type", task.Type, "error", err)
}

// requeue puts a task back on the queue after the handler-requested delay.
func (q *MemoryQueue) requeue(task *Task, delay time.Duration) {
	if task.Requeues >= defaultMaxRequeues {
		q.dropped.Add(1)
		if q.metrics != nil {
			q.metrics.RecordTaskDropped(context.Background())
		}
		q.logger.Warn("Task dropped, max requeues reached",
			"taskId", task.ID, "type", task.Type, "requeues", task.Requeues)
		return
	}

	task.Requeues++
	requeues := task.Requeues // capture for goroutine
	q.requeued.Add(1)
	if q.metrics != nil {
		q.metrics.RecordTaskRequeued(context.Background())
	}

	go func() {
		select {
		case <-q.shutdown:
			return
		case <-time.After(delay):
		}

		select {
		case q.queue <- task:
			q.logger.Debug("Task requeued", "taskId", task.ID, "type", task.Type, "requeues", requeues)
		case <-q.shutdown:
		default:
			// Buffer full, drop
			q.dropped.Add(1)
			if q.metrics != nil {
				q.metrics.RecordTaskDropped(context.Background())
			}
			q.logger.Warn("Task dropped on requeue, buffer full", "taskId", task.ID, "type", task.Type)
		}
	}()
}

func (q *MemoryQueue) processWithRetry(ctx context.Context, handler Handler, task *Task) error {
	var lastErr error
	for attempt := range defaultMaxRetries + 1 {
		if attempt > 0 {
			q.retriesTotal.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, nil)):
			}
		}

		lastErr = handler.Process(ctx, task.ID)
		if lastErr == nil {
			return nil
		}
		// Classified errors are terminal; only unclassified infrastructure
		// failures are worth retrying inline.
		if apperrors.AsError(lastErr) != nil {
			return lastErr
		}
	}
	return lastErr
}

// Verify MemoryQueue implements Queue
var _ Queue = (*MemoryQueue)(nil)
