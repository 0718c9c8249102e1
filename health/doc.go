// Package health aggregates liveness information from the daemon's
// subsystems. Probes are registered once at startup and evaluated on
// demand; the aggregate is degraded when any probe is degraded and
// unhealthy when any probe fails.
package health
