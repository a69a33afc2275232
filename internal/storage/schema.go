package storage

import (
	"fmt"
	"log"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 2

// initSchema creates the required tables if they don't exist.
// Uses IF NOT EXISTS to make the operation idempotent.
func (s *SQLiteStore) initSchema() error {
	// Schema version table tracks database migrations.
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the debug_sessions table.
func (s *SQLiteStore) migrateToV1() error {
	log.Printf("storage: applying migration to schema version 1")

	// Session ids restart at 1 for every server process, so the server id
	// is part of the key. Timestamps are RFC3339 strings.
	const sessionsTable = `
		CREATE TABLE IF NOT EXISTS debug_sessions (
			server_id TEXT NOT NULL,
			session_id INTEGER NOT NULL,
			opened_at TEXT NOT NULL,
			closed_at TEXT,
			close_reason TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (server_id, session_id)
		);

		CREATE INDEX IF NOT EXISTS idx_debug_sessions_opened ON debug_sessions(opened_at);
	`

	if _, err := s.db.Exec(sessionsTable); err != nil {
		return fmt.Errorf("create debug_sessions table: %w", err)
	}
	return s.recordVersion(1)
}

// migrateToV2 adds the device announced by the connect message.
func (s *SQLiteStore) migrateToV2() error {
	log.Printf("storage: applying migration to schema version 2")

	const deviceColumns = `
		ALTER TABLE debug_sessions ADD COLUMN platform TEXT NOT NULL DEFAULT '';
		ALTER TABLE debug_sessions ADD COLUMN model TEXT NOT NULL DEFAULT '';
	`

	if _, err := s.db.Exec(deviceColumns); err != nil {
		return fmt.Errorf("add device columns: %w", err)
	}
	return s.recordVersion(2)
}

func (s *SQLiteStore) recordVersion(version int) error {
	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record schema version %d: %w", version, err)
	}
	return nil
}
