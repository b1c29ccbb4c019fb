package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pleader-ai/pleader-backend/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrSnapshotNotFound is returned when no snapshot has been saved under a name
	ErrSnapshotNotFound = errors.New("index snapshot not found")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// DocumentRepository handles uploaded document records
type DocumentRepository interface {
	// Create inserts a new document
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a document owned by ownerID
	GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*models.Document, error)

	// ListByOwner retrieves an owner's documents, newest first
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Document, error)

	// ListIndexed retrieves every indexed document, oldest first, for rebuilding an index
	ListIndexed(ctx context.Context, limit, offset int) ([]*models.Document, error)

	// UpdateIndexing stores status and chunk count
	UpdateIndexing(ctx context.Context, doc *models.Document) error

	// Delete deletes a document owned by ownerID
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) DocumentRepository
}

// SnapshotRepository stores serialised vector indexes as opaque blobs
type SnapshotRepository interface {
	// Save writes data under name, replacing any previous snapshot
	Save(ctx context.Context, name string, data []byte) error

	// Load returns the snapshot saved under name or ErrSnapshotNotFound
	Load(ctx context.Context, name string) ([]byte, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Documents DocumentRepository
	Snapshots SnapshotRepository
}
