// Package enrichment routes bus events to enrichment handlers by event-type
// prefix. Routes are registered once at process start; handlers may consult
// the inference registry and re-publish enriched events.
package enrichment
