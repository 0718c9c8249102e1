package storage

import (
	"context"
	"time"
)

// MetadataRecord is one enriched entity description.
type MetadataRecord struct {
	EntityID    string         `json:"entity_id"`
	EntityType  string         `json:"entity_type"`
	Category    string         `json:"category"`
	Environment string         `json:"environment"`
	Role        string         `json:"role"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MetadataStore persists entity metadata records.
type MetadataStore interface {
	// InsertMetadata stores one record.
	InsertMetadata(ctx context.Context, record MetadataRecord) error

	// InsertMetadataBatch stores records atomically; either all are
	// persisted or none.
	InsertMetadataBatch(ctx context.Context, records []MetadataRecord) error

	// GetMetadata returns all records for an entity, newest first.
	GetMetadata(ctx context.Context, entityID string) ([]MetadataRecord, error)

	// Close releases the underlying resources.
	Close() error
}
