// Package pgvector stores the retrieval index in PostgreSQL using the
// pgvector extension, for deployments that share one index between
// several API processes.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/pleader-ai/pleader-backend/services"
	"github.com/pleader-ai/pleader-backend/services/rag"
	"go.uber.org/zap"
)

var _ rag.Index = (*Index)(nil)

const hitColumns = `chunk_id, document_id, owner_id, position, text, filename, content_hash`

// HNSW scans return at most hnsw.ef_search rows. pgvector defaults it to 40
// and caps it at 1000; larger limits fall back to an exact scan.
const (
	defaultEfSearch = 40
	maxEfSearch     = 1000
)

// DB is the subset of *pgxpool.Pool the index uses
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var _ DB = (*pgxpool.Pool)(nil)

// Index is a rag.Index backed by a pgvector table. Cosine similarity is
// computed by the database as 1 - (embedding <=> query).
type Index struct {
	pool      DB
	dimension int
	logger    *zap.Logger
}

// Open connects to PostgreSQL, creates the chunk table if needed and
// returns the index. The caller owns the pool and closes it with Close.
func Open(ctx context.Context, connString string, dimension int, logger *zap.Logger) (*Index, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgvector pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping pgvector database: %w", err)
	}

	idx, err := NewIndex(pool, dimension, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := idx.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// NewIndex wraps an existing pool
func NewIndex(pool DB, dimension int, logger *zap.Logger) (*Index, error) {
	if dimension <= 0 {
		return nil, services.NewInvalidParameterError("index dimension must be positive")
	}
	return &Index{pool: pool, dimension: dimension, logger: logger}, nil
}

// Init creates the extension, table and indexes
func (i *Index) Init(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS rag_chunks (
		chunk_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		position INT NOT NULL,
		text TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		embedding vector(%d) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rag_chunks_document_id ON rag_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_rag_chunks_owner_id ON rag_chunks(owner_id);
	CREATE INDEX IF NOT EXISTS idx_rag_chunks_embedding ON rag_chunks USING hnsw (embedding vector_cosine_ops);
	`, i.dimension)

	if _, err := i.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize pgvector schema: %w", err)
	}
	i.logger.Info("pgvector index ready", zap.Int("dimension", i.dimension))
	return nil
}

// Close releases the connection pool
func (i *Index) Close() {
	if i.pool != nil {
		i.pool.Close()
	}
}

// Dimension returns the vector length of the index
func (i *Index) Dimension() int {
	return i.dimension
}

// Insert adds or replaces one chunk
func (i *Index) Insert(ctx context.Context, chunkID string, vector []float32, meta rag.ChunkMetadata) error {
	entry := rag.Entry{ChunkID: chunkID, Vector: vector, Metadata: meta}
	if err := i.validate(entry); err != nil {
		return err
	}
	if _, err := i.pool.Exec(ctx, upsertSQL, upsertArgs(entry)...); err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// ReplaceDocument swaps every chunk of documentID for entries in one
// transaction and returns the number of chunks removed.
func (i *Index) ReplaceDocument(ctx context.Context, documentID string, entries []rag.Entry) (int, error) {
	for _, e := range entries {
		if err := i.validate(e); err != nil {
			return 0, err
		}
		if e.Metadata.DocumentID != documentID {
			return 0, services.NewInvalidParameterError("entry belongs to a different document")
		}
	}

	var removed int
	err := pgx.BeginFunc(ctx, i.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM rag_chunks WHERE document_id = $1`, documentID)
		if err != nil {
			return err
		}
		removed = int(tag.RowsAffected())

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(upsertSQL, upsertArgs(e)...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replace document chunks: %w", err)
	}
	return removed, nil
}

// Search returns the k chunks most similar to query
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	if len(query) != i.dimension {
		return nil, services.NewDimensionMismatchError(i.dimension, len(query))
	}
	if k <= 0 {
		return []rag.Hit{}, nil
	}

	// A zero query has no direction; every chunk scores 0.
	if isZero(query) {
		rows, err := i.pool.Query(ctx, `SELECT `+hitColumns+`, 0::float8 AS score
			FROM rag_chunks
			ORDER BY position, document_id, chunk_id
			LIMIT $1`, k)
		if err != nil {
			return nil, fmt.Errorf("failed to search chunks: %w", err)
		}
		return scanHits(rows, k)
	}

	var hits []rag.Hit
	err := pgx.BeginFunc(ctx, i.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, scanSetting(k)); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+hitColumns+`, 1 - (embedding <=> $1) AS score
			FROM rag_chunks
			ORDER BY embedding <=> $1, position, document_id, chunk_id
			LIMIT $2`, pgvector.NewVector(query), k)
		if err != nil {
			return err
		}
		hits, err = scanHits(rows, k)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	return hits, nil
}

// scanSetting widens the HNSW candidate list so the scan can fill a page of
// k rows. It is applied with SET LOCAL and ends with the transaction.
func scanSetting(k int) string {
	if k > maxEfSearch {
		return `SET LOCAL enable_indexscan = off`
	}
	return fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, max(k, defaultEfSearch))
}

func scanHits(rows pgx.Rows, k int) ([]rag.Hit, error) {
	defer rows.Close()

	hits := make([]rag.Hit, 0, k)
	for rows.Next() {
		var (
			h     rag.Hit
			score float64
		)
		if err := rows.Scan(
			&h.ChunkID,
			&h.Metadata.DocumentID,
			&h.Metadata.OwnerID,
			&h.Metadata.Position,
			&h.Metadata.Text,
			&h.Metadata.Filename,
			&h.Metadata.ContentHash,
			&score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if math.IsNaN(score) {
			score = 0
		}
		h.Score = score
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return hits, nil
}

// Remove deletes one chunk; unknown IDs are ignored
func (i *Index) Remove(ctx context.Context, chunkID string) error {
	if _, err := i.pool.Exec(ctx, `DELETE FROM rag_chunks WHERE chunk_id = $1`, chunkID); err != nil {
		return fmt.Errorf("failed to remove chunk: %w", err)
	}
	return nil
}

// RemoveByDocument deletes every chunk of a document
func (i *Index) RemoveByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := i.pool.Exec(ctx, `DELETE FROM rag_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove document chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Size returns the number of chunks
func (i *Index) Size(ctx context.Context) (int, error) {
	var n int
	if err := i.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rag_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Stats returns document and chunk counts
func (i *Index) Stats(ctx context.Context) (rag.IndexStats, error) {
	var stats rag.IndexStats
	err := i.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT document_id), COUNT(*) FROM rag_chunks`).
		Scan(&stats.DocumentCount, &stats.ChunkCount)
	if err != nil {
		return rag.IndexStats{}, fmt.Errorf("failed to read index stats: %w", err)
	}
	return stats, nil
}

// DocumentFingerprint returns the content hash and chunk count of an
// indexed document, or zero values when it is not indexed
func (i *Index) DocumentFingerprint(ctx context.Context, documentID string) (string, int, error) {
	var (
		hash  string
		count int
	)
	err := i.pool.QueryRow(ctx, `SELECT content_hash, COUNT(*) FROM rag_chunks
		WHERE document_id = $1
		GROUP BY content_hash
		ORDER BY COUNT(*) DESC
		LIMIT 1`, documentID).Scan(&hash, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read document fingerprint: %w", err)
	}
	return hash, count, nil
}

func (i *Index) validate(e rag.Entry) error {
	if e.ChunkID == "" {
		return services.NewInvalidParameterError("chunk ID must not be empty")
	}
	if len(e.Vector) != i.dimension {
		return services.NewDimensionMismatchError(i.dimension, len(e.Vector))
	}
	return nil
}

const upsertSQL = `INSERT INTO rag_chunks (` + hitColumns + `, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (chunk_id) DO UPDATE SET
		document_id = EXCLUDED.document_id,
		owner_id = EXCLUDED.owner_id,
		position = EXCLUDED.position,
		text = EXCLUDED.text,
		filename = EXCLUDED.filename,
		content_hash = EXCLUDED.content_hash,
		embedding = EXCLUDED.embedding`

func upsertArgs(e rag.Entry) []any {
	return []any{
		e.ChunkID,
		e.Metadata.DocumentID,
		e.Metadata.OwnerID,
		e.Metadata.Position,
		e.Metadata.Text,
		e.Metadata.Filename,
		e.Metadata.ContentHash,
		pgvector.NewVector(e.Vector),
	}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
