// Package storage persists enriched entity metadata.
//
// The MetadataStore interface is the narrow surface callers depend on; the
// SQLite implementation backs it with a single-file database suitable for
// edge deployments without an external database server.
package storage
