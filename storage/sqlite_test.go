package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertAndGetMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := MetadataRecord{
		EntityID:    "host-1",
		EntityType:  "asset",
		Category:    "endpoint",
		Environment: "production",
		Role:        "workstation",
		Metadata:    map[string]any{"os": "linux", "criticality": "high"},
	}
	require.NoError(t, store.InsertMetadata(ctx, record))

	got, err := store.GetMetadata(ctx, "host-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "asset", got[0].EntityType)
	assert.Equal(t, "endpoint", got[0].Category)
	assert.Equal(t, "linux", got[0].Metadata["os"])
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestInsertMetadataBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []MetadataRecord{
		{EntityID: "host-2", EntityType: "asset", Role: "server"},
		{EntityID: "host-2", EntityType: "asset", Role: "database"},
		{EntityID: "host-3", EntityType: "asset", Role: "gateway"},
	}
	require.NoError(t, store.InsertMetadataBatch(ctx, records))

	got, err := store.GetMetadata(ctx, "host-2")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.GetMetadata(ctx, "host-3")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInsertMetadataBatchEmpty(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.InsertMetadataBatch(context.Background(), nil))
}

func TestGetMetadataNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertMetadata(ctx, MetadataRecord{
		EntityID: "host-4", EntityType: "asset", Role: "old", CreatedAt: base,
	}))
	require.NoError(t, store.InsertMetadata(ctx, MetadataRecord{
		EntityID: "host-4", EntityType: "asset", Role: "new", CreatedAt: base.Add(time.Hour),
	}))

	got, err := store.GetMetadata(ctx, "host-4")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Role)
	assert.Equal(t, "old", got[1].Role)
}

func TestGetMetadataUnknownEntity(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetMetadata(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}
