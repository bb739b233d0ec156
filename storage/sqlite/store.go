// Package sqlite provides the SQLite-backed repositories. Single-use
// consumption and fingerprint rotation are single conditional UPDATEs, and
// the multi-row invalidation flows run inside one transaction through InTx.
package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/pkg/errors"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// timeFormat keeps the nanoseconds fixed-width, unlike RFC3339Nano, so the
// stored strings order lexicographically the same as the instants they encode
// and the expiry comparisons in SQL are exact.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'USER',
	verified      INTEGER NOT NULL DEFAULT 0,
	token_version INTEGER NOT NULL DEFAULT 0,
	provider      TEXT NOT NULL DEFAULT '',
	provider_sub  TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_provider ON users(provider, provider_sub);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	fingerprint TEXT NOT NULL UNIQUE,
	ip          TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	expires_at  TEXT NOT NULL,
	revoked_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

CREATE TABLE IF NOT EXISTS action_tokens (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	fingerprint TEXT NOT NULL UNIQUE,
	kind        TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	expires_at  TEXT NOT NULL,
	consumed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_action_tokens_user ON action_tokens(user_id, kind);
`

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same repo code serves both direct and transaction-scoped access.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store provides SQLite-backed repositories for users, sessions and action
// tokens.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("[sqlite.Open] storage path is required")
	}

	// The modernc driver only understands the _pragma form. busy_timeout makes
	// concurrent conditional writes wait for the lock instead of failing with
	// SQLITE_BUSY, and foreign_keys arms the schema's ON DELETE cascades.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Open] sql.Open")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlite.Open] db.Ping")
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlite.Open] schema")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Repos returns the repository bundle backed by this store.
func (s *Store) Repos() auth.Repos {
	return auth.Repos{
		Users:        &UserRepo{q: s.db},
		Sessions:     &SessionRepo{q: s.db},
		ActionTokens: &ActionTokenRepo{q: s.db},
	}
}

var _ auth.TxRunner = (*Store)(nil)

// InTx runs fn against transaction-scoped repos. Any error rolls the whole
// transaction back.
func (s *Store) InTx(fn func(auth.Repos) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "[Store.InTx] db.Begin")
	}

	repos := auth.Repos{
		Users:        &UserRepo{q: tx},
		Sessions:     &SessionRepo{q: tx},
		ActionTokens: &ActionTokenRepo{q: tx},
	}

	if err := fn(repos); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "[Store.InTx] tx.Commit")
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
