// Package orchestrator consumes detected pattern records: it deduplicates
// them against an in-memory cache, persists new ones through a retrying
// fallback executor, accumulates KPIs per campaign, handles anomalous
// records, and runs a closed-loop optimization pass over campaign KPIs.
package orchestrator
