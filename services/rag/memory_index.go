package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/pleader-ai/pleader-backend/services"
)

type memoryEntry struct {
	id     string
	vector []float32
	norm   float64
	meta   ChunkMetadata
}

// MemoryIndex is an exhaustive in-memory cosine-similarity index.
//
// Entries keep insertion order; search cost is linear in the number of
// entries. Readers share the lock, writers take it exclusively.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   []memoryEntry
	byID      map[string]int
}

// NewMemoryIndex creates an empty index for vectors of the given length.
func NewMemoryIndex(dimension int) (*MemoryIndex, error) {
	if dimension <= 0 {
		return nil, services.NewInvalidParameterError(fmt.Sprintf("index dimension must be positive, got %d", dimension))
	}
	return &MemoryIndex{
		dimension: dimension,
		byID:      make(map[string]int),
	}, nil
}

// Dimension returns the vector length accepted by the index
func (m *MemoryIndex) Dimension() int {
	return m.dimension
}

// Insert adds an entry, replacing any existing entry with the same chunk ID
func (m *MemoryIndex) Insert(_ context.Context, chunkID string, vector []float32, meta ChunkMetadata) error {
	entry, err := m.newEntry(chunkID, vector, meta)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(entry)
	return nil
}

// ReplaceDocument drops documentID's entries and inserts entries in one step
func (m *MemoryIndex) ReplaceDocument(_ context.Context, documentID string, entries []Entry) (int, error) {
	prepared := make([]memoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Metadata.DocumentID != documentID {
			return 0, services.NewInvalidParameterError(
				fmt.Sprintf("entry %s belongs to document %q, not %q", e.ChunkID, e.Metadata.DocumentID, documentID))
		}
		entry, err := m.newEntry(e.ChunkID, e.Vector, e.Metadata)
		if err != nil {
			return 0, err
		}
		prepared = append(prepared, entry)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.removeWhereLocked(func(e *memoryEntry) bool { return e.meta.DocumentID == documentID })
	for _, entry := range prepared {
		m.putLocked(entry)
	}
	return removed, nil
}

// Search returns the k entries most similar to query.
//
// Ties are broken by ascending position, then document ID, then chunk ID,
// so identical inputs always produce identical output.
func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != m.dimension {
		return nil, services.NewDimensionMismatchError(m.dimension, len(query))
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	queryNorm := vectorNorm(query)

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.entries))
	for i := range m.entries {
		e := &m.entries[i]
		hits = append(hits, Hit{
			ChunkID:  e.id,
			Score:    cosine(query, queryNorm, e.vector, e.norm),
			Metadata: e.meta,
		})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metadata.Position != b.Metadata.Position {
			return a.Metadata.Position < b.Metadata.Position
		}
		if a.Metadata.DocumentID != b.Metadata.DocumentID {
			return a.Metadata.DocumentID < b.Metadata.DocumentID
		}
		return a.ChunkID < b.ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove deletes a single chunk
func (m *MemoryIndex) Remove(_ context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeWhereLocked(func(e *memoryEntry) bool { return e.id == chunkID })
	return nil
}

// RemoveByDocument deletes every chunk belonging to documentID
func (m *MemoryIndex) RemoveByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.removeWhereLocked(func(e *memoryEntry) bool { return e.meta.DocumentID == documentID }), nil
}

// Size returns the number of entries
func (m *MemoryIndex) Size(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Stats returns distinct document and total chunk counts
func (m *MemoryIndex) Stats(_ context.Context) (IndexStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make(map[string]struct{})
	for i := range m.entries {
		docs[m.entries[i].meta.DocumentID] = struct{}{}
	}
	return IndexStats{DocumentCount: len(docs), ChunkCount: len(m.entries)}, nil
}

// DocumentFingerprint returns the recorded content hash and chunk count of a document
func (m *MemoryIndex) DocumentFingerprint(_ context.Context, documentID string) (string, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hash string
	count := 0
	for i := range m.entries {
		if m.entries[i].meta.DocumentID != documentID {
			continue
		}
		if count == 0 {
			hash = m.entries[i].meta.ContentHash
		}
		count++
	}
	return hash, count, nil
}

func (m *MemoryIndex) newEntry(chunkID string, vector []float32, meta ChunkMetadata) (memoryEntry, error) {
	if chunkID == "" {
		return memoryEntry{}, services.NewInvalidParameterError("chunk ID must not be empty")
	}
	if len(vector) != m.dimension {
		return memoryEntry{}, services.NewDimensionMismatchError(m.dimension, len(vector))
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	return memoryEntry{id: chunkID, vector: v, norm: vectorNorm(v), meta: meta}, nil
}

func (m *MemoryIndex) putLocked(entry memoryEntry) {
	if i, ok := m.byID[entry.id]; ok {
		m.entries[i] = entry
		return
	}
	m.byID[entry.id] = len(m.entries)
	m.entries = append(m.entries, entry)
}

// removeWhereLocked compacts entries in place and rebuilds the ID lookup
// when anything was removed.
func (m *MemoryIndex) removeWhereLocked(match func(*memoryEntry) bool) int {
	kept := m.entries[:0]
	for i := range m.entries {
		if !match(&m.entries[i]) {
			kept = append(kept, m.entries[i])
		}
	}
	removed := len(m.entries) - len(kept)
	if removed == 0 {
		return 0
	}
	clear(m.entries[len(kept):])
	m.entries = kept

	m.byID = make(map[string]int, len(kept))
	for i := range m.entries {
		m.byID[m.entries[i].id] = i
	}
	return removed
}

func (m *MemoryIndex) resetLocked(entries []memoryEntry) {
	m.entries = entries
	m.byID = make(map[string]int, len(entries))
	for i := range entries {
		m.byID[entries[i].id] = i
	}
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero magnitude.
func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
