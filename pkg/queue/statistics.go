package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks queue performance counters.
type Statistics struct {
	// Atomic counters for thread-safe updates
	pushes int64
	pops   int64
	drops  int64

	// Protected by mutex
	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Push records a successful enqueue.
func (s *Statistics) Push() {
	atomic.AddInt64(&s.pushes, 1)
}

// Pop records a successful dequeue.
func (s *Statistics) Pop() {
	atomic.AddInt64(&s.pops, 1)
}

// Drop records an item rejected because the queue was full.
func (s *Statistics) Drop() {
	atomic.AddInt64(&s.drops, 1)
}

// UpdateSize updates the current queue size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Pushes returns the total number of successful enqueues.
func (s *Statistics) Pushes() int64 {
	return atomic.LoadInt64(&s.pushes)
}

// Pops returns the total number of successful dequeues.
func (s *Statistics) Pops() int64 {
	return atomic.LoadInt64(&s.pops)
}

// Drops returns the total number of dropped items.
func (s *Statistics) Drops() int64 {
	return atomic.LoadInt64(&s.drops)
}

// CurrentSize returns the last observed queue size.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the maximum number of items the queue has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// DropRate returns the fraction of offered items that were dropped (0.0 to 1.0).
func (s *Statistics) DropRate() float64 {
	offered := s.Pushes() + s.Drops()
	if offered == 0 {
		return 0.0
	}
	return float64(s.Drops()) / float64(offered)
}

// Uptime returns how long the queue has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Pushes      int64   `json:"pushes"`
	Pops        int64   `json:"pops"`
	Drops       int64   `json:"drops"`
	CurrentSize int64   `json:"current_size"`
	MaxSize     int64   `json:"max_size"`
	DropRate    float64 `json:"drop_rate"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Pushes:      s.Pushes(),
		Pops:        s.Pops(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		DropRate:    s.DropRate(),
	}
}
