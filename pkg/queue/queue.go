package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Queue is a thread-safe bounded FIFO channel between one producer and many
// consumers. Each item is delivered to exactly one consumer.
type Queue[T any] struct {
	ch       chan T
	capacity int
	stats    *Statistics
	metrics  *queueMetrics
	opts     *queueOptions[T]

	// Drain accounting: pending counts items pushed but not yet marked done.
	mu      sync.Mutex
	drained *sync.Cond
	pending int64

	closed atomic.Bool
}

// New creates a bounded queue with the given capacity.
// Returns an error only if metrics registration fails when metrics are requested.
func New[T any](capacity int, options ...Option[T]) (*Queue[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	opts := applyOptions(options...)

	var metrics *queueMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsPrefix, capacity)
		if err != nil {
			return nil, err
		}
	}

	q := &Queue[T]{
		ch:       make(chan T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	q.drained = sync.NewCond(&q.mu)
	return q, nil
}

// Push attempts to enqueue an item without blocking.
// Returns false when the queue is at capacity or closed; the item is dropped.
func (q *Queue[T]) Push(item T) bool {
	if q.closed.Load() {
		return false
	}

	q.mu.Lock()
	select {
	case q.ch <- item:
		q.pending++
		q.mu.Unlock()

		q.stats.Push()
		q.stats.UpdateSize(int64(len(q.ch)))
		if q.metrics != nil {
			q.metrics.recordPush(len(q.ch))
		}
		return true
	default:
		q.mu.Unlock()

		q.stats.Drop()
		if q.metrics != nil {
			q.metrics.recordDrop()
		}
		if q.opts.dropCallback != nil {
			q.opts.dropCallback(item)
		}
		return false
	}
}

// Pop removes and returns the oldest item, blocking up to timeout.
// Returns false when no item arrived within the timeout.
func (q *Queue[T]) Pop(timeout time.Duration) (T, bool) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.ch:
		q.stats.Pop()
		q.stats.UpdateSize(int64(len(q.ch)))
		if q.metrics != nil {
			q.metrics.recordPop(len(q.ch))
		}
		return item, true
	case <-timer.C:
		return zero, false
	}
}

// Done marks one previously popped item as fully processed.
// Every successful Pop must be paired with exactly one Done call.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending > 0 {
		q.pending--
	}
	if q.pending == 0 {
		q.drained.Broadcast()
	}
}

// Join blocks until every pushed item has been popped and marked done.
func (q *Queue[T]) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending > 0 {
		q.drained.Wait()
	}
}

// Len returns the number of items currently buffered.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Capacity returns the maximum number of items the queue can hold.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Pending returns the number of items pushed but not yet marked done.
func (q *Queue[T]) Pending() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Stats returns queue statistics (always available for observability).
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}

// Close marks the queue closed. Subsequent pushes fail; buffered items remain
// available to consumers so an in-flight drain can complete.
func (q *Queue[T]) Close() error {
	q.closed.Store(true)
	return nil
}
