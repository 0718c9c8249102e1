package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/amadeus-ai/nexuskit/errors"
)

// Registrar defines the interface for registering component-specific metrics.
type Registrar interface {
	RegisterCounter(componentName, metricName string, counter prometheus.Counter) error
	RegisterGauge(componentName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(componentName, metricName string, histogram prometheus.Histogram) error
	Unregister(componentName, metricName string) bool
}

// Registry manages the registration and lifecycle of all NexusKit metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	core               *Core
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewRegistry creates a metrics registry with the core pipeline metrics and
// Go runtime collectors pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		core:               NewCore(),
		registered:         make(map[string]prometheus.Collector),
	}

	for _, c := range r.core.collectors() {
		r.prometheusRegistry.MustRegister(c)
	}

	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Core returns the core pipeline metrics.
func (r *Registry) Core() *Core {
	return r.core
}

// RegisterCounter registers a counter metric for a component.
func (r *Registry) RegisterCounter(componentName, metricName string, counter prometheus.Counter) error {
	return r.register(componentName, metricName, counter, "RegisterCounter")
}

// RegisterGauge registers a gauge metric for a component.
func (r *Registry) RegisterGauge(componentName, metricName string, gauge prometheus.Gauge) error {
	return r.register(componentName, metricName, gauge, "RegisterGauge")
}

// RegisterHistogram registers a histogram metric for a component.
func (r *Registry) RegisterHistogram(componentName, metricName string, histogram prometheus.Histogram) error {
	return r.register(componentName, metricName, histogram, "RegisterHistogram")
}

func (r *Registry) register(componentName, metricName string, collector prometheus.Collector, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", componentName, metricName)

	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", metricName, componentName),
			"Registry", op, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "Registry", op,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "Registry", op, "register collector with prometheus")
	}

	r.registered[key] = collector
	return nil
}

// Unregister removes a previously registered metric.
// Returns true if the metric was found and removed.
func (r *Registry) Unregister(componentName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", componentName, metricName)
	collector, exists := r.registered[key]
	if !exists {
		return false
	}

	delete(r.registered, key)
	return r.prometheusRegistry.Unregister(collector)
}
