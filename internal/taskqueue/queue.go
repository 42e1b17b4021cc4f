// Package taskqueue provides async task delivery to in-process handlers
// with buffering and retry.
package taskqueue

import (
	"context"
	"errors"
)

// ErrBufferFull is returned when the queue's buffer is full and the task is
// dropped.
var ErrBufferFull = errors.New("task queue buffer full, task dropped")

// ErrNoHandler is returned when no handler is registered for a task type.
var ErrNoHandler = errors.New("no handler registered for task type")

// Handler processes one task to a terminal state.
type Handler interface {
	Process(ctx context.Context, taskID string) error
}

// Task is one unit of queued work.
type Task struct {
	ID       string
	Type     string
	Requeues int // number of times requeued, internal use
}

// Queue handles async delivery of tasks to their handlers.
type Queue interface {
	// Enqueue queues a task for async processing. Non-blocking.
	// Returns ErrBufferFull if the task cannot be queued.
	Enqueue(task *Task) error

	// Stats returns current queue statistics.
	Stats() Stats

	// Close gracefully shuts down, attempting to process queued tasks.
	// The context deadline controls how long to wait for drain.
	Close(ctx context.Context) error
}

// Stats holds queue statistics.
type Stats struct {
	QueueDepth   int   // current queue size
	Queued       int64 // total tasks queued
	Processed    int64 // successful completions
	Failed       int64 // failed after retries
	Dropped      int64 // dropped due to full buffer or max requeues
	Requeued     int64 // requeued on handler request
	RetriesTotal int64 // total retry attempts
}
