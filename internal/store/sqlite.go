// Package store persists the last materialized feed snapshot per filter so
// a restarted client can render immediately while the live subscription
// catches up.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Connectlite/cl/internal/domain"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed snapshot cache.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at path. The caller
// should call Close when the store is no longer needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			filter_key TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			taken_at   TIMESTAMP NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot upserts the snapshot for its filter key.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap.Posts)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (filter_key, payload, taken_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (filter_key) DO UPDATE SET payload = $2, taken_at = $3`,
		snap.Filter.Key(), string(payload), snap.MaterializedAt,
	)
	return err
}

// LoadSnapshot retrieves the cached snapshot for a filter. Returns nil with
// no error when nothing is cached.
func (s *Store) LoadSnapshot(ctx context.Context, filter domain.FeedFilter) (*domain.Snapshot, error) {
	var (
		payload string
		takenAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, taken_at FROM snapshots WHERE filter_key = $1`,
		filter.Key(),
	).Scan(&payload, &takenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	var posts []domain.Post
	if err := json.Unmarshal([]byte(payload), &posts); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &domain.Snapshot{
		Filter:         filter,
		Posts:          posts,
		MaterializedAt: takenAt,
	}, nil
}

// Clear removes every cached snapshot.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`)
	return err
}
