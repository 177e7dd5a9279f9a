package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the catalog store schema version written at bootstrap.
const SchemaVersion = "1.0"

// CreateSchema creates all tables and indexes for the catalog store.
// Uses a transaction so schema creation succeeds or fails as a whole.
//
// Schema includes:
//   - runs: one row per scan invocation
//   - artifacts: one row per cataloged artifact, cascading from its run
//   - invocables: ordered catalog entries, cascading from their artifact
//   - store_metadata: schema version bootstrap
//
// Must be called with SQLite PRAGMA foreign_keys = ON.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []struct {
		name string
		ddl  string
	}{
		{"runs", createRunsTable},
		{"artifacts", createArtifactsTable},
		{"invocables", createInvocablesTable},
		{"store_metadata", createStoreMetadataTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		`INSERT INTO store_metadata (key, value, updated_at) VALUES ('schema_version', ?, ?)`,
		SchemaVersion, now,
	); err != nil {
		return fmt.Errorf("failed to bootstrap store_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// GetSchemaVersion retrieves the schema version from store_metadata.
// Returns "0" if the table doesn't exist (new database).
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='store_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check store_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM store_metadata WHERE key = 'schema_version'").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("schema_version key not found in store_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

const createRunsTable = `
CREATE TABLE runs (
    run_id TEXT PRIMARY KEY,
    root_path TEXT NOT NULL,
    pipeline_version TEXT NOT NULL,
    started_at TEXT NOT NULL
)`

const createArtifactsTable = `
CREATE TABLE artifacts (
    artifact_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    target_path TEXT NOT NULL,
    target_name TEXT NOT NULL,
    target_kind TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    scanned_at TEXT NOT NULL,
    total INTEGER NOT NULL,
    UNIQUE (run_id, target_path)
)`

const createInvocablesTable = `
CREATE TABLE invocables (
    invocable_id TEXT PRIMARY KEY,
    artifact_id TEXT NOT NULL REFERENCES artifacts(artifact_id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    confidence TEXT NOT NULL,
    rationale TEXT NOT NULL,         -- JSON array
    description TEXT,
    signature TEXT NOT NULL,
    return_type TEXT,                -- JSON object or NULL
    parameters TEXT NOT NULL,        -- JSON array
    origin_path TEXT NOT NULL,
    origin_line INTEGER,
    execution_method TEXT NOT NULL,
    execution TEXT NOT NULL          -- JSON object, method first
)`

const createStoreMetadataTable = `
CREATE TABLE store_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

func getAllIndexes() []string {
	return []string{
		"CREATE INDEX idx_artifacts_run ON artifacts(run_id)",
		"CREATE INDEX idx_artifacts_path ON artifacts(target_path)",
		"CREATE INDEX idx_invocables_artifact ON invocables(artifact_id, position)",
		"CREATE INDEX idx_invocables_name ON invocables(name)",
		"CREATE INDEX idx_invocables_confidence ON invocables(confidence)",
	}
}
