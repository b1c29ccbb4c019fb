package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pleader-ai/pleader-backend/repositories"
	"go.uber.org/zap"
)

// SnapshotRepository stores index snapshots in the rag_index_snapshots table
type SnapshotRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB, logger *zap.Logger) repositories.SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: logger,
	}
}

// Save upserts the snapshot stored under name
func (r *SnapshotRepository) Save(ctx context.Context, name string, data []byte) error {
	query := `
		INSERT INTO rag_index_snapshots (name, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, name, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save index snapshot: %w", err)
	}

	r.logger.Debug("index snapshot saved", zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}

// Load returns the snapshot stored under name
func (r *SnapshotRepository) Load(ctx context.Context, name string) ([]byte, error) {
	query := `SELECT data FROM rag_index_snapshots WHERE name = $1`

	var data []byte
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load index snapshot: %w", err)
	}
	return data, nil
}
