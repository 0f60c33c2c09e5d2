package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Store backed by a local SQLite database. Sessions survive
// server restarts.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS messages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_messages_session_created
    ON messages (session_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

// History returns all messages for the session, ordered oldest-first.
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	const q = `
SELECT role, content, created_at
FROM   messages
WHERE  session_id = ?
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("session: history scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: history rows: %w", err)
	}
	return msgs, nil
}

// AppendTurn persists the question/answer pair in a single transaction.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, question, answer string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: append turn: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, q, sessionID, string(RoleUser), question, now); err != nil {
		return fmt.Errorf("session: append question: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, sessionID, string(RoleAssistant), answer, now); err != nil {
		return fmt.Errorf("session: append answer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: append turn commit: %w", err)
	}
	return nil
}

// Reset deletes the session's messages.
func (s *SQLiteStore) Reset(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM messages WHERE session_id = ?`
	if _, err := s.db.ExecContext(ctx, q, sessionID); err != nil {
		return fmt.Errorf("session: reset: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}
