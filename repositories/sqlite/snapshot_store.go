// Package sqlite stores index snapshots in a local SQLite file.
//
// It lets a single-node deployment or the ragctl tool persist the in-memory
// index without a PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pleader-ai/pleader-backend/repositories"
	"go.uber.org/zap"
)

// SnapshotStore implements repositories.SnapshotRepository on SQLite
type SnapshotStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSnapshotStore opens (creating if needed) the database at path
func NewSnapshotStore(path string, logger *zap.Logger) (*SnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rag_index_snapshots (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}

	logger.Info("sqlite snapshot store opened", zap.String("path", path))
	return &SnapshotStore{db: db, path: path, logger: logger}, nil
}

// Save replaces the snapshot stored under name
func (s *SnapshotStore) Save(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rag_index_snapshots (name, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, name, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving index snapshot: %w", err)
	}
	s.logger.Debug("index snapshot saved", zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}

// Load returns the snapshot stored under name
func (s *SnapshotStore) Load(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM rag_index_snapshots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repositories.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading index snapshot: %w", err)
	}
	return data, nil
}

// Path returns the database file path
func (s *SnapshotStore) Path() string {
	return s.path
}

// Close closes the database
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

var _ repositories.SnapshotRepository = (*SnapshotStore)(nil)
