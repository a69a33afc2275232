package storage

// sessions.go contains SQLiteStore methods for the debug session journal.

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// maxSessions is the maximum number of sessions to retain.
// Older sessions are deleted when this limit is exceeded.
const maxSessions = 200

// timeLayout is RFC3339 with a fixed-width fraction so that stored
// timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// defaultListLimit is used by ListSessions when no limit is given.
const defaultListLimit = 20

// Session is one journal entry.
type Session struct {
	ServerID  string
	SessionID int64
	Platform  string
	Model     string
	OpenedAt  time.Time

	// ClosedAt is zero while the session is open.
	ClosedAt    time.Time
	CloseReason string
}

// Open reports whether the session has not been recorded as closed.
func (s *Session) Open() bool {
	return s.ClosedAt.IsZero()
}

// RecordOpen records an admitted session.
// Enforces retention: keeps only the most recent maxSessions sessions.
func (s *SQLiteStore) RecordOpen(serverID string, sessionID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT OR REPLACE INTO debug_sessions
			(server_id, session_id, opened_at, closed_at, close_reason, platform, model)
		VALUES (?, ?, ?, NULL, '', '', '')
	`
	if _, err := s.db.Exec(query, serverID, sessionID, at.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("record session open: %w", err)
	}

	const cleanupQuery = `
		DELETE FROM debug_sessions WHERE rowid IN (
			SELECT rowid FROM debug_sessions ORDER BY opened_at DESC LIMIT -1 OFFSET ?
		)
	`
	if _, err := s.db.Exec(cleanupQuery, maxSessions); err != nil {
		return fmt.Errorf("enforce session retention: %w", err)
	}
	return nil
}

// RecordDevice stores the device announced on a session.
func (s *SQLiteStore) RecordDevice(serverID string, sessionID int64, platform, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `UPDATE debug_sessions SET platform = ?, model = ? WHERE server_id = ? AND session_id = ?`
	res, err := s.db.Exec(query, platform, model, serverID, sessionID)
	if err != nil {
		return fmt.Errorf("record session device: %w", err)
	}
	return requireRow(res)
}

// RecordClose stores when and why a session closed.
func (s *SQLiteStore) RecordClose(serverID string, sessionID int64, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		UPDATE debug_sessions SET closed_at = ?, close_reason = ?
		WHERE server_id = ? AND session_id = ?
	`
	res, err := s.db.Exec(query, at.UTC().Format(timeLayout), reason, serverID, sessionID)
	if err != nil {
		return fmt.Errorf("record session close: %w", err)
	}
	return requireRow(res)
}

// ListSessions returns recent sessions ordered by opened_at (newest first).
// The limit parameter controls how many sessions to return (0 = default limit).
func (s *SQLiteStore) ListSessions(limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	const query = `
		SELECT server_id, session_id, platform, model, opened_at, closed_at, close_reason
		FROM debug_sessions
		ORDER BY opened_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	log.Printf("storage: listed %d sessions", len(sessions))
	return sessions, nil
}

func scanSession(rows *sql.Rows) (*Session, error) {
	var (
		session  Session
		openedAt string
		closedAt sql.NullString
	)

	err := rows.Scan(
		&session.ServerID,
		&session.SessionID,
		&session.Platform,
		&session.Model,
		&openedAt,
		&closedAt,
		&session.CloseReason,
	)
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	t, err := time.Parse(timeLayout, openedAt)
	if err != nil {
		return nil, fmt.Errorf("parse opened_at: %w", err)
	}
	session.OpenedAt = t

	if closedAt.Valid {
		t, err = time.Parse(timeLayout, closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse closed_at: %w", err)
		}
		session.ClosedAt = t
	}

	return &session, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
