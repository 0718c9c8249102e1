package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Core contains the pipeline-level metrics shared by all components.
type Core struct {
	EventsReceived  *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	EventsPublished *prometheus.CounterVec

	BatchesFlushed *prometheus.CounterVec
	BatchSize      prometheus.Histogram

	RetryAttempts *prometheus.CounterVec
	CircuitState  *prometheus.GaugeVec

	BusConnected prometheus.Gauge
}

// NewCore creates the core pipeline metrics.
func NewCore() *Core {
	return &Core{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nexuskit",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total events received from the bus",
			},
			[]string{"type"},
		),
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nexuskit",
				Subsystem: "events",
				Name:      "processed_total",
				Help:      "Total events handed to a consumer handler",
			},
			[]string{"type", "status"},
		),
		EventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nexuskit",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total events dropped because the queue was full",
			},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nexuskit",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total events published to the bus",
			},
			[]string{"type", "status"},
		),
		BatchesFlushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nexuskit",
				Subsystem: "batcher",
				Name:      "flushes_total",
				Help:      "Total batch flushes by trigger (size, interval, manual, stop)",
			},
			[]string{"trigger"},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "nexuskit",
				Subsystem: "batcher",
				Name:      "batch_size",
				Help:      "Number of items per flushed batch",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
		),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nexuskit",
				Subsystem: "fallback",
				Name:      "retry_attempts_total",
				Help:      "Total retry attempts by outcome",
			},
			[]string{"outcome"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "nexuskit",
				Subsystem: "fallback",
				Name:      "circuit_open",
				Help:      "Circuit breaker state per executor (0=closed, 1=open)",
			},
			[]string{"executor"},
		),
		BusConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nexuskit",
				Subsystem: "bus",
				Name:      "connected",
				Help:      "Whether the event bus connection is healthy (0/1)",
			},
		),
	}
}

// collectors returns every core metric for bulk registration.
func (c *Core) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.EventsReceived,
		c.EventsProcessed,
		c.EventsDropped,
		c.EventsPublished,
		c.BatchesFlushed,
		c.BatchSize,
		c.RetryAttempts,
		c.CircuitState,
		c.BusConnected,
	}
}
