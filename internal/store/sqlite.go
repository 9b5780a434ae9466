// Package store provides the SQLite-backed artifact store. One database
// holds every run's artifacts keyed by (run_id, name); persisting the same
// name twice for a run overwrites.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements the runtime ArtifactStore contract on a local
// SQLite database. Safe for concurrent use across run ids.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

const artifactSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
    run_id     TEXT NOT NULL,
    name       TEXT NOT NULL,
    media_type TEXT NOT NULL DEFAULT 'application/octet-stream',
    data       BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, name)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);
`

// NewSQLiteStore opens (creating if needed) the artifact database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(artifactSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: path}, nil
}

// Persist stores data under (runID, name), replacing any previous version.
// Returns a locator for the stored artifact.
func (s *SQLiteStore) Persist(ctx context.Context, runID, name string, data []byte, mediaType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, name, media_type, data, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET
		   media_type = excluded.media_type,
		   data = excluded.data,
		   created_at = excluded.created_at`,
		runID, name, mediaType, data, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to persist artifact %s/%s: %w", runID, name, err)
	}
	return fmt.Sprintf("sqlite://%s/%s/%s", s.dbPath, runID, name), nil
}

// Get returns the stored bytes for (runID, name).
func (s *SQLiteStore) Get(ctx context.Context, runID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM artifacts WHERE run_id = ? AND name = ?`,
		runID, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact not found: %s/%s", runID, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s/%s: %w", runID, name, err)
	}
	return data, nil
}

// MediaType returns the stored media type for (runID, name).
func (s *SQLiteStore) MediaType(ctx context.Context, runID, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mt string
	err := s.db.QueryRowContext(ctx,
		`SELECT media_type FROM artifacts WHERE run_id = ? AND name = ?`,
		runID, name).Scan(&mt)
	if err != nil {
		return "", fmt.Errorf("failed to load artifact %s/%s: %w", runID, name, err)
	}
	return mt, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
