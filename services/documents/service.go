// Package documents manages uploaded legal documents: it extracts their
// text, records them in the document store and keeps the retrieval index in
// step with the store.
package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pleader-ai/pleader-backend/models"
	"github.com/pleader-ai/pleader-backend/repositories"
	"github.com/pleader-ai/pleader-backend/services"
	"github.com/pleader-ai/pleader-backend/services/rag"
	"go.uber.org/zap"
)

// Listing limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	reindexPageSize  = 100
)

// Extractor turns uploaded bytes into text
type Extractor interface {
	Extract(ctx context.Context, content []byte, filename string) (string, error)
}

// Indexer adds and removes documents from the retrieval index
type Indexer interface {
	AddDocument(ctx context.Context, doc rag.DocumentInput) (int, error)
	RemoveDocument(ctx context.Context, documentID string) (int, error)
}

// Service coordinates the document store and the retrieval index
type Service struct {
	docs      repositories.DocumentRepository
	txMgr     repositories.TransactionManager
	extractor Extractor
	indexer   Indexer
	logger    *zap.Logger
}

// NewService creates a document service
func NewService(docs repositories.DocumentRepository, txMgr repositories.TransactionManager, extractor Extractor, indexer Indexer, logger *zap.Logger) *Service {
	return &Service{
		docs:      docs,
		txMgr:     txMgr,
		extractor: extractor,
		indexer:   indexer,
		logger:    logger,
	}
}

// Upload extracts the file's text, stores the document and indexes it.
// The record is written as pending before the chunks are embedded, and
// marked indexed once they are in the index, so no database transaction
// stays open across embedding calls. If indexing fails the pending record
// is deleted; if marking it indexed fails the chunks are removed as well.
func (s *Service) Upload(ctx context.Context, ownerID, filename string, content []byte) (*models.Document, error) {
	if ownerID == "" {
		return nil, services.ErrUnauthorized
	}

	text, err := s.extractor.Extract(ctx, content, filename)
	if err != nil {
		return nil, err
	}

	doc := models.NewDocument(ownerID, filename, int64(len(content)), text, rag.ContentHash(text))
	if err := s.index(ctx, doc); err != nil {
		s.logger.Error("document upload failed",
			zap.String("owner_id", ownerID),
			zap.String("filename", filename),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("owner_id", ownerID),
		zap.String("filename", filename),
		zap.Int("chunks", doc.ChunkCount))
	return doc, nil
}

func (s *Service) index(ctx context.Context, doc *models.Document) error {
	if err := s.docs.Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	count, err := s.indexer.AddDocument(ctx, inputFor(doc))
	if err != nil {
		s.discard(ctx, doc)
		return err
	}

	doc.MarkAsIndexed(count)
	if err := s.docs.UpdateIndexing(ctx, doc); err != nil {
		s.removeChunks(context.WithoutCancel(ctx), doc)
		s.discard(ctx, doc)
		return fmt.Errorf("failed to record indexing: %w", err)
	}
	return nil
}

// discard deletes the record of a document that never became indexed
func (s *Service) discard(ctx context.Context, doc *models.Document) {
	err := s.docs.Delete(context.WithoutCancel(ctx), doc.OwnerID, doc.ID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.logger.Error("failed to delete pending document",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err))
	}
}

// List returns the owner's documents, newest first
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := s.docs.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Get returns one of the owner's documents
func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, ownerID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Delete removes one of the owner's documents and its chunks. If the commit
// fails after the chunks were removed, they are re-indexed from the stored
// text.
func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	_, err := services.WithCompensatedTransaction(ctx, s.txMgr,
		func(ctx context.Context, tx repositories.Transaction) (*models.Document, error) {
			repo := s.docs.WithTx(tx)
			doc, err := repo.GetByID(ctx, ownerID, id)
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrDocumentNotFound
			}
			if err != nil {
				return nil, fmt.Errorf("failed to get document: %w", err)
			}

			if err := repo.Delete(ctx, ownerID, id); err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return nil, services.ErrDocumentNotFound
				}
				return nil, fmt.Errorf("failed to delete document: %w", err)
			}

			if _, err := s.indexer.RemoveDocument(ctx, id.String()); err != nil {
				return nil, err
			}
			return doc, nil
		},
		func(ctx context.Context, doc *models.Document) {
			if doc.Status != models.DocumentStatusIndexed {
				return
			}
			if _, err := s.indexer.AddDocument(ctx, inputFor(doc)); err != nil {
				s.logger.Error("failed to restore chunks after aborted delete",
					zap.String("document_id", doc.ID.String()),
					zap.Error(err))
			}
		})
	if err != nil {
		return err
	}

	s.logger.Info("document deleted",
		zap.String("document_id", id.String()),
		zap.String("owner_id", ownerID))
	return nil
}

// Reindex adds every indexed document in the store to the index. Documents
// whose text is unchanged are skipped by the indexer. It returns the number
// of documents processed.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	processed := 0
	for offset := 0; ; offset += reindexPageSize {
		docs, err := s.docs.ListIndexed(ctx, reindexPageSize, offset)
		if err != nil {
			return processed, fmt.Errorf("failed to list indexed documents: %w", err)
		}
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if _, err := s.indexer.AddDocument(ctx, inputFor(doc)); err != nil {
				s.logger.Error("failed to reindex document",
					zap.String("document_id", doc.ID.String()),
					zap.Error(err))
				return processed, err
			}
			processed++
		}
		if len(docs) < reindexPageSize {
			break
		}
	}

	s.logger.Info("reindexed documents", zap.Int("documents", processed))
	return processed, nil
}

func (s *Service) removeChunks(ctx context.Context, doc *models.Document) {
	if _, err := s.indexer.RemoveDocument(ctx, doc.ID.String()); err != nil {
		s.logger.Error("failed to remove chunks of unsaved document",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err))
	}
}

func inputFor(doc *models.Document) rag.DocumentInput {
	return rag.DocumentInput{
		DocumentID: doc.ID.String(),
		OwnerID:    doc.OwnerID,
		Filename:   doc.Filename,
		Text:       doc.Content,
	}
}
