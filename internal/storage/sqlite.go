// Package storage persists the debug session journal in SQLite.
//
// The journal records every admitted session: when it opened, which device
// announced itself on it, and when and why it closed. It backs the
// "tabris sessions" command.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	// SQLite driver - imported for side effects (registers the driver).
	// Using modernc.org/sqlite which is a pure-Go implementation that
	// doesn't require CGO, making cross-compilation and testing easier.
	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned when an update targets a session that was
// never recorded as open.
var ErrSessionNotFound = errors.New("session not found")

// SQLiteStore is the session journal. It creates the database and tables on
// first use and supports concurrent access through internal locking.
type SQLiteStore struct {
	db *sql.DB      // Database connection handle.
	mu sync.RWMutex // Guards all database operations for thread safety.
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// It initializes the schema if the tables don't exist.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("storage: opening database at %s", path)

	// A busy_timeout of 5 seconds covers "tabris sessions" reading while a
	// running server writes.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	// Verify the connection is working.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}

	// Create tables if they don't exist.
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Printf("storage: database ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}
