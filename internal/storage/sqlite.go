package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const (
	// SQLiteFileName is the database file created under the data dir.
	SQLiteFileName = "state.db"

	// envelopeKey is the single row the envelope lives in.
	envelopeKey = "local"

	// sqliteSchemaVersion is bumped whenever migrateSchema learns a new step.
	sqliteSchemaVersion = 1
)

// SQLiteConfig holds SQLite store configuration.
type SQLiteConfig struct {
	DataDir string
}

// ─── Store ───────────────────────────────────────────────────────────────────

// SQLiteStore is the durable local BackingStore backed by a single-row
// SQLite table. Each Set replaces the whole envelope in one statement, so
// data and meta.version are never persisted out of sync.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	hooks sqliteHooks
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqliteHooks struct {
	exec    func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *SQLiteStore) execHook(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *SQLiteStore) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db)
	}
	return s.db.BeginTx(ctx, nil)
}

func (s *SQLiteStore) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// NewSQLiteStore creates the data directory if needed, opens SQLite with WAL
// mode, and runs the table migrations.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("storage: sqlite data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, SQLiteFileName)
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrateSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: schema migration: %w", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ─── Schema ──────────────────────────────────────────────────────────────────

// migrateSchema is the store's own table layout migration. It is unrelated
// to the state migrations applied to the envelope's data.
func (s *SQLiteStore) migrateSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS envelopes (
			key        TEXT PRIMARY KEY,
			version    INTEGER,
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range statements {
		if _, err := s.execHook(ctx, tx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	if _, err := s.execHook(ctx, tx,
		`INSERT INTO store_meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", sqliteSchemaVersion),
	); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}

	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}
	return nil
}

// ─── BackingStore ────────────────────────────────────────────────────────────

// Get returns the persisted envelope, or nil when nothing was ever written.
func (s *SQLiteStore) Get(ctx context.Context) (*Envelope, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM envelopes WHERE key = ?`, envelopeKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read envelope: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("storage: decode envelope: %w", err)
	}
	return &env, nil
}

// Set replaces the persisted envelope.
func (s *SQLiteStore) Set(ctx context.Context, envelope Envelope) error {
	if envelope.IsEmpty() {
		return ErrStateMissing
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("storage: encode envelope: %w", err)
	}

	var version any
	if envelope.Meta != nil {
		version = envelope.Meta.Version
	}
	_, err = s.execHook(ctx, s.db,
		`INSERT INTO envelopes (key, version, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			version = excluded.version,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		envelopeKey, version, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage: write envelope: %w", err)
	}
	return nil
}
