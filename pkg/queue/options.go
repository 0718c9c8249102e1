package queue

import (
	"github.com/amadeus-ai/nexuskit/metric"
)

// DropCallback is invoked with each item rejected because the queue was full.
type DropCallback[T any] func(item T)

// Option configures a Queue.
type Option[T any] func(*queueOptions[T])

type queueOptions[T any] struct {
	dropCallback  DropCallback[T]
	metricsReg    *metric.Registry
	metricsPrefix string
}

func applyOptions[T any](options ...Option[T]) *queueOptions[T] {
	opts := &queueOptions[T]{}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

// WithDropCallback registers a callback invoked for every dropped item.
// The callback runs on the producer goroutine, outside the queue lock.
func WithDropCallback[T any](cb DropCallback[T]) Option[T] {
	return func(o *queueOptions[T]) {
		o.dropCallback = cb
	}
}

// WithMetrics enables Prometheus metrics registration under the given prefix.
func WithMetrics[T any](reg *metric.Registry, prefix string) Option[T] {
	return func(o *queueOptions[T]) {
		o.metricsReg = reg
		o.metricsPrefix = prefix
	}
}
