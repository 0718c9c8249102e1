package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Probe evaluates the current health of one subsystem.
type Probe func() Status

// Monitor evaluates registered probes on demand. Safe for concurrent use.
type Monitor struct {
	mu     sync.RWMutex
	probes map[string]Probe
	order  []string
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		probes: make(map[string]Probe),
	}
}

// Register adds a named probe. Re-registering a name replaces its probe.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.probes[name]; !exists {
		m.order = append(m.order, name)
	}
	m.probes[name] = probe
}

// Check evaluates one probe.
func (m *Monitor) Check(name string) (Status, bool) {
	m.mu.RLock()
	probe, ok := m.probes[name]
	m.mu.RUnlock()

	if !ok {
		return Status{}, false
	}
	return probe(), true
}

// Report evaluates every probe in registration order.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	probes := make([]Probe, 0, len(names))
	for _, name := range names {
		probes = append(probes, m.probes[name])
	}
	m.mu.RUnlock()

	statuses := make([]Status, 0, len(probes))
	for i, probe := range probes {
		status := probe()
		status.Component = names[i]
		if status.Timestamp.IsZero() {
			status.Timestamp = time.Now()
		}
		statuses = append(statuses, status)
	}

	return Report{
		State:      aggregate(statuses),
		Timestamp:  time.Now(),
		Subsystems: statuses,
	}
}

// Handler serves the report as JSON. Unhealthy reports return 503 so load
// balancers can act on the status code alone.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := m.Report()

		w.Header().Set("Content-Type", "application/json")
		if report.State == Unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}
