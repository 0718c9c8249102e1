package batcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amadeus-ai/nexuskit/metric"
)

// batchRecorder collects flushed batches for assertions.
type batchRecorder[T any] struct {
	mu      sync.Mutex
	batches [][]T
}

func (r *batchRecorder[T]) handler(batch []T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *batchRecorder[T]) get() [][]T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]T, len(r.batches))
	copy(out, r.batches)
	return out
}

func TestSizeTriggeredFlush(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := New(3, time.Minute, rec.handler)

	for i := 0; i < 3; i++ {
		b.Add(i)
	}

	batches := rec.get()
	require.Len(t, batches, 1)
	assert.Equal(t, []int{0, 1, 2}, batches[0])
	// Buffer is empty immediately after the flush.
	assert.Equal(t, 0, b.Len())
}

func TestOrderPreservedWithinBatch(t *testing.T) {
	rec := &batchRecorder[string]{}
	b := New(4, time.Minute, rec.handler)

	for _, s := range []string{"a", "b", "c", "d"} {
		b.Add(s)
	}

	batches := rec.get()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"a", "b", "c", "d"}, batches[0])
}

func TestIntervalTriggeredFlush(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := New(100, 50*time.Millisecond, rec.handler)
	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop() }()

	b.Add(1)
	b.Add(2)

	// Fewer than batchSize items: the interval flusher must fire within
	// one interval plus polling granularity.
	require.Eventually(t, func() bool {
		return len(rec.get()) == 1
	}, 500*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, []int{1, 2}, rec.get()[0])
	assert.Equal(t, 0, b.Len())
}

func TestIntervalDoesNotFlushEmptyBuffer(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := New(10, 20*time.Millisecond, rec.handler)
	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop() }()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.get())
}

func TestManualFlushTrigger(t *testing.T) {
	rec := &batchRecorder[int]{}
	core := metric.NewCore()
	b := New(10, time.Minute, rec.handler, WithMetrics[int](core))

	b.Add(1)
	b.Flush()

	require.Len(t, rec.get(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(core.BatchesFlushed.WithLabelValues(triggerManual)))
	assert.Equal(t, 0.0, testutil.ToFloat64(core.BatchesFlushed.WithLabelValues(triggerSize)))
}

func TestStopPerformsFinalFlush(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := New(100, time.Minute, rec.handler)
	require.NoError(t, b.Start(context.Background()))

	b.Add(7)
	b.Add(8)
	require.NoError(t, b.Stop())

	batches := rec.get()
	require.Len(t, batches, 1)
	assert.Equal(t, []int{7, 8}, batches[0])
}

func TestStopIsIdempotent(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := New(10, time.Minute, rec.handler)
	require.NoError(t, b.Start(context.Background()))

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())
}

func TestStopBeforeStart(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := New(10, time.Minute, rec.handler)
	assert.Error(t, b.Stop())
}

func TestDoubleStart(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := New(10, time.Minute, rec.handler)
	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop() }()

	assert.Error(t, b.Start(context.Background()))
}

func TestSlowHandlerDoesNotBlockAdd(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	b := New(2, time.Minute, func(_ []int) {
		once.Do(func() { <-release })
	})

	// First flush parks the handler on the producer goroutine.
	done := make(chan struct{})
	go func() {
		b.Add(1)
		b.Add(2) // triggers flush, blocks in handler
		close(done)
	}()

	// Add from another goroutine must not be blocked by the in-flight handler.
	time.Sleep(20 * time.Millisecond)
	added := make(chan struct{})
	go func() {
		b.Add(3)
		close(added)
	}()

	select {
	case <-added:
	case <-time.After(time.Second):
		t.Fatal("Add blocked while a flush handler was running")
	}

	close(release)
	<-done
}

func TestConcurrentAdds(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := New(10, time.Minute, rec.handler)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Add(n*10 + j)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, batch := range rec.get() {
		assert.Len(t, batch, 10)
		total += len(batch)
	}
	assert.Equal(t, 100, total+b.Len())
}
