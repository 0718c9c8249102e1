// Package metric provides Prometheus-based metrics collection for NexusKit.
//
// A single Registry owns a dedicated prometheus.Registry, pre-registers the
// core pipeline metrics (events received/processed/dropped, batch flushes,
// retry attempts, circuit breaker state, bus connectivity), and accepts
// component-specific metrics through the Register* methods. The HTTP handler
// exposes everything in Prometheus exposition format.
package metric
