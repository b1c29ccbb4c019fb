package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pleader-ai/pleader-backend/models"
	"github.com/pleader-ai/pleader-backend/repositories"
	"go.uber.org/zap"
)

const documentColumns = `id, owner_id, filename, file_type, size_bytes, content, content_hash,
		text_length, chunk_count, status, created_at, updated_at`

// DocumentRepository implements the repositories.DocumentRepository interface
type DocumentRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB, logger *zap.Logger) repositories.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *DocumentRepository) executor() Executor {
	if r.tx != nil {
		return r.tx.tx
	}
	return r.db.DB
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.executor().ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Filename,
		doc.FileType,
		doc.SizeBytes,
		doc.Content,
		doc.ContentHash,
		doc.TextLength,
		doc.ChunkCount,
		doc.Status,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	r.logger.Debug("document created",
		zap.String("id", doc.ID.String()),
		zap.String("owner_id", doc.OwnerID),
		zap.String("filename", doc.Filename))
	return nil
}

// GetByID retrieves a document owned by ownerID
func (r *DocumentRepository) GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND owner_id = $2
	`

	doc, err := scanDocument(r.executor().QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByOwner retrieves an owner's documents, newest first
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, ownerID, limit, offset)
}

// ListIndexed retrieves indexed documents of every owner, oldest first
func (r *DocumentRepository) ListIndexed(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, models.DocumentStatusIndexed, limit, offset)
}

func (r *DocumentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := r.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// UpdateIndexing stores status and chunk count
func (r *DocumentRepository) UpdateIndexing(ctx context.Context, doc *models.Document) error {
	query := `
		UPDATE documents
		SET status = $1, chunk_count = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.executor().ExecContext(ctx, query, doc.Status, doc.ChunkCount, doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// Delete deletes a document owned by ownerID
func (r *DocumentRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	query := `DELETE FROM documents WHERE id = $1 AND owner_id = $2`

	result, err := r.executor().ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("document deleted", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *DocumentRepository) WithTx(tx repositories.Transaction) repositories.DocumentRepository {
	pgTx, _ := tx.(*Transaction)
	return &DocumentRepository{
		db:     r.db,
		tx:     pgTx,
		logger: r.logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	doc := &models.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.FileType,
		&doc.SizeBytes,
		&doc.Content,
		&doc.ContentHash,
		&doc.TextLength,
		&doc.ChunkCount,
		&doc.Status,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
