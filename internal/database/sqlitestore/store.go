// Package sqlitestore provides SQLite-backed store implementations.
// All stores share one connection opened by Open.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

// DB wraps the shared database handle.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Queries are traced through otelsql.
func Open(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := otelsql.Open("sqlite", dsn, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer keeps conditional updates serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// ModerationStore returns the moderation store.
func (d *DB) ModerationStore() *ModerationStore {
	return &ModerationStore{db: d.db}
}

// ReputationStore returns the reputation store.
func (d *DB) ReputationStore() *ReputationStore {
	return &ReputationStore{db: d.db}
}

// TermStore returns the dictionary term store.
func (d *DB) TermStore() *TermStore {
	return &TermStore{db: d.db}
}

// NotificationStore returns the notification store.
func (d *DB) NotificationStore() *NotificationStore {
	return &NotificationStore{db: d.db}
}

// withTx runs fn in a transaction and commits when it returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id                TEXT PRIMARY KEY,
	reporter_id       TEXT NOT NULL,
	item_id           TEXT NOT NULL,
	item_type         TEXT NOT NULL,
	type              TEXT NOT NULL,
	content           TEXT NOT NULL DEFAULT '',
	proof_url         TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	reviewer_id       TEXT NOT NULL DEFAULT '',
	processing_action TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status, created_at);

CREATE TABLE IF NOT EXISTS accounts (
	user_id      TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	banned_until INTEGER,
	score        INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feature_blocks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL REFERENCES accounts(user_id),
	feature    TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feature_blocks_user ON feature_blocks(user_id);

CREATE TABLE IF NOT EXISTS punishments (
	id              TEXT PRIMARY KEY,
	report_id       TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	moderator_id    TEXT NOT NULL,
	violation_level INTEGER NOT NULL,
	points          INTEGER NOT NULL,
	detail          TEXT NOT NULL DEFAULT '',
	proof_url       TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_punishments_user ON punishments(user_id, created_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id        TEXT PRIMARY KEY,
	action    TEXT NOT NULL,
	actor_id  TEXT NOT NULL,
	report_id TEXT NOT NULL DEFAULT '',
	target_id TEXT NOT NULL DEFAULT '',
	reason    TEXT NOT NULL DEFAULT '',
	details   TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL,
	auto_mod  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);

CREATE TABLE IF NOT EXISTS reputation_scores (
	user_id    TEXT PRIMARY KEY,
	document   INTEGER NOT NULL DEFAULT 0,
	event      INTEGER NOT NULL DEFAULT 0,
	report     INTEGER NOT NULL DEFAULT 0,
	activity   INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reputation_log (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	delta      INTEGER NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reputation_log_user ON reputation_log(user_id, created_at);

CREATE TABLE IF NOT EXISTS dictionary_terms (
	term     TEXT PRIMARY KEY,
	added_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	report_id  TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
`
