// Package db provides SQLite-backed persistence standing in for the remote
// conversation document store: ordered range queries over messages, batched
// atomic writes, partial read-marker updates, and a polling change feed.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/Deirdris/react-chat/internal/logging"
)

// timeLayout is a fixed-width RFC3339 variant so lexicographic order of
// stored timestamps matches chronological order, including sub-second parts.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps the SQLite handle with migration and transaction helpers.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, busyTimeoutMs int) (*DB, error) {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path, busyTimeoutMs)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &DB{DB: handle, logger: logging.Component("db")}, nil
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory() (*DB, error) {
	handle, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A single connection keeps every statement on the same in-memory store.
	handle.SetMaxOpenConns(1)
	return &DB{DB: handle, logger: logging.Component("db")}, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		photo_url    TEXT,
		created_at   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id                  TEXT PRIMARY KEY,
		pair_key            TEXT NOT NULL UNIQUE,
		participant_a       TEXT NOT NULL,
		participant_b       TEXT NOT NULL,
		last_message_text   TEXT,
		last_message_author TEXT,
		last_message_at     TEXT,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		author_id       TEXT NOT NULL,
		text            TEXT NOT NULL,
		created_at      TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
		ON messages(conversation_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS read_markers (
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		user_id         TEXT NOT NULL,
		message_id      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_last_message
		ON conversations(last_message_at)`,
}

// MigrateUp applies the schema, returning the number of statements run.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	applied := 0
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return applied, fmt.Errorf("migration %d failed: %w", applied, err)
		}
		applied++
	}
	return applied, nil
}

// Transaction runs fn inside a transaction, rolling back on error.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueConstraintError reports whether err is a UNIQUE violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "constraint_unique")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
