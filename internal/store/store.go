// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/dayplan/internal/migrate"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for planner state.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers from the background queue.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS practice_records (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			day_key TEXT NOT NULL,
			cluster TEXT NOT NULL,
			mode TEXT NOT NULL,
			lesson_id TEXT NOT NULL,
			completed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			duration_seconds INTEGER NOT NULL,
			UNIQUE (user_id, day_key, lesson_id)
		);`,
		`CREATE TABLE IF NOT EXISTS axis_profiles (
			user_id TEXT NOT NULL,
			axis TEXT NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY (user_id, axis)
		);`,
		`CREATE TABLE IF NOT EXISTS today_plans (
			scope TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS performance_snapshots (
			user_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS earned_rounds (
			user_id TEXT PRIMARY KEY,
			day_key TEXT NOT NULL,
			credits INTEGER NOT NULL,
			used_today INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS guest_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			pending INTEGER NOT NULL,
			migrated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pacing_answers (
			user_id TEXT PRIMARY KEY,
			answer TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS shown_cards (
			user_id TEXT NOT NULL,
			card_id TEXT NOT NULL,
			day_key TEXT NOT NULL,
			shown_at TEXT NOT NULL,
			PRIMARY KEY (user_id, card_id, day_key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_practice_records_user_day ON practice_records(user_id, day_key);`,
		`CREATE INDEX IF NOT EXISTS idx_shown_cards_user_shown ON shown_cards(user_id, shown_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// LoadFlags implements migrate.FlagStore.
func (s *Store) LoadFlags(ctx context.Context) (migrate.Flags, error) {
	var flags migrate.Flags
	err := s.db.QueryRowContext(ctx,
		`SELECT pending, migrated FROM guest_state WHERE id = 1`).Scan(&flags.Pending, &flags.Migrated)
	if errors.Is(err, sql.ErrNoRows) {
		return migrate.Flags{}, nil
	}
	if err != nil {
		return migrate.Flags{}, err
	}
	return flags, nil
}

// SaveFlags implements migrate.FlagStore.
func (s *Store) SaveFlags(ctx context.Context, flags migrate.Flags) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guest_state (id, pending, migrated) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET pending = excluded.pending, migrated = excluded.migrated`,
		flags.Pending, flags.Migrated)
	return err
}

func closeRows(rows *sql.Rows) {
	if cerr := rows.Close(); cerr != nil {
		// Best-effort rows close.
		_ = cerr
	}
}
