package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amadeus-ai/nexuskit/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS entity_metadata (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id   TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	environment TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entity_metadata_entity_id
	ON entity_metadata(entity_id);
`

const insertStmt = `
INSERT INTO entity_metadata
	(entity_id, entity_type, category, environment, role, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// SQLiteStore is a MetadataStore backed by a SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		s.logger = logger
	}
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "SQLiteStore", "NewSQLiteStore", "open database")
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapFatal(err, "SQLiteStore", "NewSQLiteStore", "apply schema")
	}

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("metadata store opened", "path", path)
	return s, nil
}

// InsertMetadata stores one record.
func (s *SQLiteStore) InsertMetadata(ctx context.Context, record MetadataRecord) error {
	meta, err := encodeMetadata(record.Metadata)
	if err != nil {
		return errors.WrapInvalid(err, "SQLiteStore", "InsertMetadata", "encode metadata")
	}

	_, err = s.db.ExecContext(ctx, insertStmt,
		record.EntityID, record.EntityType, record.Category,
		record.Environment, record.Role, meta, createdAt(record))
	if err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "InsertMetadata", "insert record")
	}
	return nil
}

// InsertMetadataBatch stores records in a single transaction.
func (s *SQLiteStore) InsertMetadataBatch(ctx context.Context, records []MetadataRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "InsertMetadataBatch", "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "InsertMetadataBatch", "prepare insert")
	}
	defer stmt.Close()

	for _, record := range records {
		meta, err := encodeMetadata(record.Metadata)
		if err != nil {
			return errors.WrapInvalid(err, "SQLiteStore", "InsertMetadataBatch", "encode metadata")
		}
		if _, err := stmt.ExecContext(ctx,
			record.EntityID, record.EntityType, record.Category,
			record.Environment, record.Role, meta, createdAt(record)); err != nil {
			return errors.WrapTransient(err, "SQLiteStore", "InsertMetadataBatch", "insert record")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "InsertMetadataBatch", "commit transaction")
	}

	s.logger.Debug("metadata batch persisted", "count", len(records))
	return nil
}

// GetMetadata returns all records for an entity, newest first.
func (s *SQLiteStore) GetMetadata(ctx context.Context, entityID string) ([]MetadataRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT entity_id, entity_type, category, environment, role, metadata, created_at
FROM entity_metadata
WHERE entity_id = ?
ORDER BY created_at DESC, id DESC`, entityID)
	if err != nil {
		return nil, errors.WrapTransient(err, "SQLiteStore", "GetMetadata", "query records")
	}
	defer rows.Close()

	var records []MetadataRecord
	for rows.Next() {
		var record MetadataRecord
		var meta string
		if err := rows.Scan(&record.EntityID, &record.EntityType, &record.Category,
			&record.Environment, &record.Role, &meta, &record.CreatedAt); err != nil {
			return nil, errors.WrapTransient(err, "SQLiteStore", "GetMetadata", "scan record")
		}
		if err := json.Unmarshal([]byte(meta), &record.Metadata); err != nil {
			return nil, errors.WrapInvalid(err, "SQLiteStore", "GetMetadata", "decode metadata")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "SQLiteStore", "GetMetadata", "iterate records")
	}
	return records, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "SQLiteStore", "Close", "close database")
	}
	return nil
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func createdAt(record MetadataRecord) time.Time {
	if record.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return record.CreatedAt
}
