package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// MemoryQueue is a buffered channel consumed by a fixed set of workers.
type MemoryQueue struct {
	tasks   chan Task
	workers int
	drain   time.Duration
	onError ErrorHook

	mu     sync.RWMutex
	closed bool
}

// MemoryOption configures a MemoryQueue.
type MemoryOption func(*MemoryQueue)

// WithOnError sets the hook called for every failed task.
func WithOnError(h ErrorHook) MemoryOption {
	return func(q *MemoryQueue) { q.onError = h }
}

// WithDrain sets how long running tasks may finish after Consume's context
// is cancelled.
func WithDrain(d time.Duration) MemoryOption {
	return func(q *MemoryQueue) { q.drain = d }
}

// NewMemory creates an in-process queue.
func NewMemory(workers, buffer int, opts ...MemoryOption) *MemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	q := &MemoryQueue{tasks: make(chan Task, buffer), workers: workers, drain: DefaultDrain}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue adds t without blocking. It fails with ErrFull when the buffer
// is saturated.
func (q *MemoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return ErrFull
	}
}

// Consume starts the workers and blocks until ctx is done or the queue is
// closed and drained. Buffered tasks not yet started when ctx ends stay in
// submitted and are picked up by the requeue sweep.
func (q *MemoryQueue) Consume(ctx context.Context, h Handler) error {
	hctx, cancel := drainContext(ctx, q.drain)
	defer cancel()

	var g errgroup.Group
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case t, ok := <-q.tasks:
					if !ok {
						return nil
					}
					if err := safeHandle(hctx, h, t); err != nil {
						reportFailure(q.onError, "memory", t, err)
					}
				}
			}
		})
	}
	return g.Wait()
}

// Len reports the number of buffered tasks.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}
