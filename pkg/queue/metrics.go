package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/metric"
)

// queueMetrics holds optional Prometheus metrics for one queue instance.
type queueMetrics struct {
	depth  prometheus.Gauge
	pushes prometheus.Counter
	pops   prometheus.Counter
	drops  prometheus.Counter
}

func newQueueMetrics(reg *metric.Registry, prefix string, capacity int) (*queueMetrics, error) {
	m := &queueMetrics{
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_depth",
			Help: "Current number of buffered events",
		}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_pushed_total",
			Help: "Total events accepted by the queue",
		}),
		pops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_popped_total",
			Help: "Total events removed from the queue",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Total events dropped because the queue was full",
		}),
	}

	capGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_capacity",
		Help: "Configured queue capacity",
	})
	capGauge.Set(float64(capacity))

	serviceName := "event_queue"
	registrations := []func() error{
		func() error { return reg.RegisterGauge(serviceName, prefix+"_depth", m.depth) },
		func() error { return reg.RegisterGauge(serviceName, prefix+"_capacity", capGauge) },
		func() error { return reg.RegisterCounter(serviceName, prefix+"_pushed_total", m.pushes) },
		func() error { return reg.RegisterCounter(serviceName, prefix+"_popped_total", m.pops) },
		func() error { return reg.RegisterCounter(serviceName, prefix+"_dropped_total", m.drops) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return nil, errors.WrapTransient(err, "Queue", "newQueueMetrics", "metrics registration")
		}
	}

	return m, nil
}

func (m *queueMetrics) recordPush(depth int) {
	m.pushes.Inc()
	m.depth.Set(float64(depth))
}

func (m *queueMetrics) recordPop(depth int) {
	m.pops.Inc()
	m.depth.Set(float64(depth))
}

func (m *queueMetrics) recordDrop() {
	m.drops.Inc()
}
