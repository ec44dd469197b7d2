// Package sqlite provides a SQLite-backed sessionstore.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/zerosystem/internal/sessionstore"
	"github.com/vk/zerosystem/internal/sessionstore/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists session values in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ sessionstore.Store = (*Store)(nil)

// Open opens, and migrates if needed, the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements sessionstore.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, sessionstore.ErrEmptyKey
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sessions WHERE session_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements sessionstore.Store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return sessionstore.ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set session %s: %w", key, err)
	}
	return nil
}
