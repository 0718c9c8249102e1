// Package inference provides the model-inference collaborator: a Client
// interface with synchronous and streaming calls, an explicit Registry
// built at process start, and an OpenAI-compatible adapter.
//
// Nothing in the ingestion core depends on this package; only enrichment
// handlers call into it.
package inference
