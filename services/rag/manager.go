package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pleader-ai/pleader-backend/repositories"
	"github.com/pleader-ai/pleader-backend/services"
	"go.uber.org/zap"
)

// DefaultSnapshotName identifies the index snapshot in the snapshot store.
const DefaultSnapshotName = "default"

// chunkNamespace scopes deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c9a52-3d0e-5b8a-9c41-7e2d8f0b6a13")

// ManagerConfig tunes document lifecycle operations.
type ManagerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// EmbedTimeout bounds the embedding of one document's chunks
	EmbedTimeout time.Duration
	// SaveTimeout bounds each snapshot write
	SaveTimeout  time.Duration
	SnapshotName string
}

// DocumentInput is the text of a document to index.
type DocumentInput struct {
	DocumentID string
	OwnerID    string
	Filename   string
	Text       string
}

// Manager owns the process-wide index. It chunks and embeds documents,
// writes them to the index and keeps the persisted snapshot current.
//
// Mutations and snapshot writes are serialised; searches go straight to the
// index and never wait on the manager lock. No lock is held while embedding.
type Manager struct {
	mu        sync.Mutex
	index     Index
	embedder  Embedder
	chunker   *Chunker
	snapshots repositories.SnapshotRepository
	config    ManagerConfig
	logger    *zap.Logger
	dirty     bool
}

// NewManager creates a manager. snapshots may be nil when the index persists
// itself or persistence is disabled.
func NewManager(index Index, embedder Embedder, snapshots repositories.SnapshotRepository, config ManagerConfig, logger *zap.Logger) (*Manager, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
		config.ChunkOverlap = DefaultChunkOverlap
	}
	chunker, err := NewChunker(config.ChunkSize, config.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if embedder.Dimension() != index.Dimension() {
		return nil, services.NewDimensionMismatchError(index.Dimension(), embedder.Dimension())
	}
	if config.SnapshotName == "" {
		config.SnapshotName = DefaultSnapshotName
	}
	return &Manager{
		index:     index,
		embedder:  embedder,
		chunker:   chunker,
		snapshots: snapshots,
		config:    config,
		logger:    logger,
	}, nil
}

// Index returns the managed index
func (m *Manager) Index() Index {
	return m.index
}

// ChunkID derives the stable ID of a document's chunk at position
func ChunkID(documentID string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"#"+strconv.Itoa(position))).String()
}

// ContentHash fingerprints document text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// AddDocument chunks, embeds and indexes a document and returns the number
// of chunks it now has in the index.
//
// Either every chunk is indexed or none is: all embeddings are collected
// before the index is touched. Re-adding identical text is a no-op; changed
// text replaces the previous chunks atomically.
//
// The embedding and index write are not abandoned when ctx is cancelled
// once work has started, so an interrupted upload cannot leave a half
// written document behind.
func (m *Manager) AddDocument(ctx context.Context, doc DocumentInput) (int, error) {
	if doc.DocumentID == "" {
		return 0, services.NewInvalidParameterError("document ID must not be empty")
	}
	if doc.OwnerID == "" {
		return 0, services.NewInvalidParameterError("owner ID must not be empty")
	}

	hash := ContentHash(doc.Text)
	existingHash, existing, err := m.index.DocumentFingerprint(ctx, doc.DocumentID)
	if err != nil {
		return 0, services.NewNotIndexedError(err)
	}
	if existing > 0 && existingHash == hash {
		m.logger.Info("document unchanged, skipping re-index",
			zap.String("document_id", doc.DocumentID),
			zap.Int("chunks", existing))
		return existing, nil
	}

	chunks := m.chunker.Chunk(doc.Text)

	work := context.WithoutCancel(ctx)
	var vectors [][]float32
	if len(chunks) > 0 {
		embedCtx, cancel := withOptionalTimeout(work, m.config.EmbedTimeout)
		vectors, err = m.embedder.EmbedMany(embedCtx, chunks)
		cancel()
		if err != nil {
			m.logger.Error("failed to embed document",
				zap.String("document_id", doc.DocumentID),
				zap.Int("chunks", len(chunks)),
				zap.Error(err))
			return 0, services.NewNotIndexedError(err)
		}
		if len(vectors) != len(chunks) {
			return 0, services.NewNotIndexedError(services.NewEmbeddingServiceError(
				fmt.Sprintf("expected %d embeddings, got %d", len(chunks), len(vectors)), nil))
		}
	}

	entries := make([]Entry, len(chunks))
	for i, text := range chunks {
		entries[i] = Entry{
			ChunkID: ChunkID(doc.DocumentID, i),
			Vector:  vectors[i],
			Metadata: ChunkMetadata{
				DocumentID:  doc.DocumentID,
				OwnerID:     doc.OwnerID,
				Position:    i,
				Text:        text,
				Filename:    doc.Filename,
				ContentHash: hash,
			},
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	replaced, err := m.index.ReplaceDocument(work, doc.DocumentID, entries)
	if err != nil {
		return 0, services.NewNotIndexedError(err)
	}
	m.dirty = true
	m.saveLocked(work)

	m.logger.Info("indexed document",
		zap.String("document_id", doc.DocumentID),
		zap.String("owner_id", doc.OwnerID),
		zap.Int("chunks", len(entries)),
		zap.Int("replaced", replaced))

	return len(entries), nil
}

// RemoveDocument drops every chunk of a document. Removing an unknown
// document returns zero.
func (m *Manager) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	work := context.WithoutCancel(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed, err := m.index.RemoveByDocument(work, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove document chunks: %w", err)
	}
	if removed > 0 {
		m.dirty = true
		m.saveLocked(work)
		m.logger.Info("removed document from index",
			zap.String("document_id", documentID),
			zap.Int("chunks", removed))
	}
	return removed, nil
}

// Stats returns document and chunk counts
func (m *Manager) Stats(ctx context.Context) (IndexStats, error) {
	return m.index.Stats(ctx)
}

// Save writes the index snapshot to the snapshot store
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writeSnapshotLocked(ctx)
}

// Flush saves the snapshot if an earlier write-through save failed
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}
	return m.writeSnapshotLocked(ctx)
}

// Load restores the index from the snapshot store. A missing snapshot
// leaves the index empty.
func (m *Manager) Load(ctx context.Context) error {
	snap, ok := m.index.(Snapshotter)
	if !ok || m.snapshots == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.snapshots.Load(ctx, m.config.SnapshotName)
	if errors.Is(err, repositories.ErrSnapshotNotFound) {
		m.logger.Info("no index snapshot found, starting empty", zap.String("snapshot", m.config.SnapshotName))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load index snapshot: %w", err)
	}
	if err := snap.Restore(data); err != nil {
		return fmt.Errorf("failed to restore index snapshot: %w", err)
	}
	m.dirty = false

	stats, _ := m.index.Stats(ctx)
	m.logger.Info("restored index snapshot",
		zap.String("snapshot", m.config.SnapshotName),
		zap.Int("documents", stats.DocumentCount),
		zap.Int("chunks", stats.ChunkCount))
	return nil
}

// saveLocked persists after a mutation. A failed write is logged and
// retried by the next mutation or by Flush; the in-memory index stays
// authoritative.
func (m *Manager) saveLocked(ctx context.Context) {
	if err := m.writeSnapshotLocked(ctx); err != nil {
		m.logger.Error("failed to persist index snapshot", zap.Error(err))
	}
}

func (m *Manager) writeSnapshotLocked(ctx context.Context) error {
	snap, ok := m.index.(Snapshotter)
	if !ok || m.snapshots == nil {
		m.dirty = false
		return nil
	}

	data, err := snap.Snapshot()
	if err != nil {
		return services.WrapInternal(services.ErrSnapshotFailed.Message, err)
	}

	saveCtx, cancel := withOptionalTimeout(ctx, m.config.SaveTimeout)
	defer cancel()
	if err := m.snapshots.Save(saveCtx, m.config.SnapshotName, data); err != nil {
		return services.WrapInternal(services.ErrSnapshotFailed.Message, err)
	}
	m.dirty = false
	return nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
