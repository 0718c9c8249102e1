package batcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/metric"
)

// Flush triggers, used as the metric label.
const (
	triggerSize     = "size"
	triggerInterval = "interval"
	triggerStop     = "stop"
	triggerManual   = "manual"
)

// Handler receives ownership of a flushed batch. Items preserve insertion
// order within the batch.
type Handler[T any] func(batch []T)

// Batcher groups items into batches flushed by size or interval.
type Batcher[T any] struct {
	batchSize int
	interval  time.Duration
	handler   Handler[T]
	logger    *slog.Logger
	metrics   *metric.Core

	mu        sync.Mutex
	items     []T
	lastFlush time.Time

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// Option configures a Batcher.
type Option[T any] func(*Batcher[T])

// WithLogger sets the structured logger.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(b *Batcher[T]) {
		b.logger = logger
	}
}

// WithMetrics enables flush metrics on the core registry.
func WithMetrics[T any](core *metric.Core) Option[T] {
	return func(b *Batcher[T]) {
		b.metrics = core
	}
}

// New creates a Batcher. The handler must not be nil.
func New[T any](batchSize int, interval time.Duration, handler Handler[T], opts ...Option[T]) *Batcher[T] {
	if batchSize <= 0 {
		batchSize = 32
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	b := &Batcher[T]{
		batchSize: batchSize,
		interval:  interval,
		handler:   handler,
		logger:    slog.Default(),
		lastFlush: time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the background interval flusher.
func (b *Batcher[T]) Start(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Batcher", "Start", "check lifecycle")
	}

	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.started = true

	go b.run(ctx)
	return nil
}

// Add appends an item. When the buffer reaches the batch size the batch is
// flushed immediately; the handler runs after the lock is released.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	b.items = append(b.items, item)

	var batch []T
	if len(b.items) >= b.batchSize {
		batch = b.swapLocked()
	}
	b.mu.Unlock()

	if batch != nil {
		b.dispatch(batch, triggerSize)
	}
}

// Flush forces an immediate flush of any buffered items.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	batch := b.swapLocked()
	b.mu.Unlock()

	if batch != nil {
		b.dispatch(batch, triggerManual)
	}
}

// Len returns the number of items currently buffered.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stop terminates the interval flusher, waits for it to exit, then performs
// one final flush so a partial batch is not lost.
func (b *Batcher[T]) Stop() error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if !b.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Batcher", "Stop", "check lifecycle")
	}
	if b.stopped {
		return nil
	}
	b.stopped = true

	close(b.stopCh)
	<-b.doneCh

	b.mu.Lock()
	batch := b.swapLocked()
	b.mu.Unlock()

	if batch != nil {
		b.dispatch(batch, triggerStop)
	}
	return nil
}

// swapLocked removes and returns the current buffer. Caller must hold b.mu.
// Returns nil when the buffer is empty.
func (b *Batcher[T]) swapLocked() []T {
	if len(b.items) == 0 {
		return nil
	}
	batch := b.items
	b.items = nil
	b.lastFlush = time.Now()
	return batch
}

// dispatch hands a batch to the handler, outside any lock.
func (b *Batcher[T]) dispatch(batch []T, trigger string) {
	if b.metrics != nil {
		b.metrics.BatchesFlushed.WithLabelValues(trigger).Inc()
		b.metrics.BatchSize.Observe(float64(len(batch)))
	}
	b.logger.Debug("flushing batch", "size", len(batch), "trigger", trigger)
	b.handler(batch)
}

// run wakes every interval and flushes a non-empty buffer whose last flush
// is at least one interval old.
func (b *Batcher[T]) run(ctx context.Context) {
	defer close(b.doneCh)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.mu.Lock()
			var batch []T
			if len(b.items) > 0 && time.Since(b.lastFlush) >= b.interval {
				batch = b.swapLocked()
			}
			b.mu.Unlock()

			if batch != nil {
				b.dispatch(batch, triggerInterval)
			}
		}
	}
}
