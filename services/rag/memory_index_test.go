package rag

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pleader-ai/pleader-backend/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, dim int) *MemoryIndex {
	t.Helper()
	idx, err := NewMemoryIndex(dim)
	require.NoError(t, err)
	return idx
}

func meta(doc, owner string, pos int) ChunkMetadata {
	return ChunkMetadata{DocumentID: doc, OwnerID: owner, Position: pos, Text: fmt.Sprintf("%s-%d", doc, pos)}
}

func TestNewMemoryIndex_InvalidDimension(t *testing.T) {
	_, err := NewMemoryIndex(0)
	assert.True(t, services.IsInvalidParameterError(err))
}

func TestMemoryIndex_SearchOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)

	require.NoError(t, idx.Insert(ctx, "c1", []float32{1, 0}, meta("d1", "u1", 0)))
	require.NoError(t, idx.Insert(ctx, "c2", []float32{0, 1}, meta("d1", "u1", 1)))
	require.NoError(t, idx.Insert(ctx, "c3", []float32{1, 1}, meta("d2", "u1", 0)))

	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "c3", hits[1].ChunkID)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-4)
	assert.Equal(t, "c2", hits[2].ChunkID)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
}

func TestMemoryIndex_SearchLimitsToK(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Insert(ctx, fmt.Sprintf("c%d", i), []float32{1, float32(i)}, meta("d", "u", i)))
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_SearchTieBreaks(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)

	require.NoError(t, idx.Insert(ctx, "z", []float32{1, 0}, meta("b", "u", 1)))
	require.NoError(t, idx.Insert(ctx, "y", []float32{2, 0}, meta("b", "u", 0)))
	require.NoError(t, idx.Insert(ctx, "x", []float32{3, 0}, meta("a", "u", 0)))
	require.NoError(t, idx.Insert(ctx, "w", []float32{4, 0}, meta("a", "u", 0)))

	hits, err := idx.Search(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	assert.Equal(t, []string{"w", "x", "y", "z"}, ids)
}

func TestMemoryIndex_ZeroVectorScoresZero(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 3)
	require.NoError(t, idx.Insert(ctx, "zero", []float32{0, 0, 0}, meta("d", "u", 0)))

	hits, err := idx.Search(ctx, []float32{1, 2, 3}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0.0, hits[0].Score)

	hits, err = idx.Search(ctx, []float32{0, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, hits[0].Score)
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 3)
	require.NoError(t, idx.Insert(ctx, "c1", []float32{1, 2, 3}, meta("d", "u", 0)))

	err := idx.Insert(ctx, "c2", []float32{1, 2}, meta("d", "u", 1))
	require.Error(t, err)
	assert.True(t, services.IsDimensionMismatchError(err))

	size, _ := idx.Size(ctx)
	assert.Equal(t, 1, size)

	_, err = idx.Search(ctx, []float32{1}, 1)
	assert.True(t, services.IsDimensionMismatchError(err))
}

func TestMemoryIndex_InsertReplacesSameChunkID(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Insert(ctx, "c1", []float32{1, 0}, meta("d", "u", 0)))
	require.NoError(t, idx.Insert(ctx, "c1", []float32{0, 1}, meta("d", "u", 0)))

	size, _ := idx.Size(ctx)
	assert.Equal(t, 1, size)

	hits, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestMemoryIndex_InsertCopiesVector(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)
	v := []float32{1, 0}
	require.NoError(t, idx.Insert(ctx, "c1", v, meta("d", "u", 0)))
	v[0], v[1] = 0, 1

	hits, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestMemoryIndex_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Insert(ctx, "c1", []float32{1, 0}, meta("d", "u", 0)))
	require.NoError(t, idx.Insert(ctx, "c2", []float32{0, 1}, meta("d", "u", 1)))

	require.NoError(t, idx.Remove(ctx, "c1"))
	require.NoError(t, idx.Remove(ctx, "c1"))
	require.NoError(t, idx.Remove(ctx, "unknown"))

	size, _ := idx.Size(ctx)
	assert.Equal(t, 1, size)

	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ChunkID)

	// the ID lookup must still point at the surviving entry
	require.NoError(t, idx.Insert(ctx, "c2", []float32{1, 1}, meta("d", "u", 1)))
	size, _ = idx.Size(ctx)
	assert.Equal(t, 1, size)
}

func TestMemoryIndex_RemoveByDocument(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Insert(ctx, "a0", []float32{1, 0}, meta("a", "u", 0)))
	require.NoError(t, idx.Insert(ctx, "b0", []float32{1, 0}, meta("b", "u", 0)))
	require.NoError(t, idx.Insert(ctx, "a1", []float32{1, 0}, meta("a", "u", 1)))

	removed, err := idx.RemoveByDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = idx.RemoveByDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, IndexStats{DocumentCount: 1, ChunkCount: 1}, stats)
}

func TestMemoryIndex_ReplaceDocument(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Insert(ctx, "a0", []float32{1, 0}, meta("a", "u", 0)))
	require.NoError(t, idx.Insert(ctx, "a1", []float32{1, 0}, meta("a", "u", 1)))
	require.NoError(t, idx.Insert(ctx, "b0", []float32{0, 1}, meta("b", "u", 0)))

	t.Run("invalid entry leaves index unchanged", func(t *testing.T) {
		_, err := idx.ReplaceDocument(ctx, "a", []Entry{
			{ChunkID: "a-new-0", Vector: []float32{1, 0}, Metadata: meta("a", "u", 0)},
			{ChunkID: "a-new-1", Vector: []float32{1}, Metadata: meta("a", "u", 1)},
		})
		assert.True(t, services.IsDimensionMismatchError(err))

		_, chunks, _ := idx.DocumentFingerprint(ctx, "a")
		assert.Equal(t, 2, chunks)
	})

	t.Run("entry for another document is rejected", func(t *testing.T) {
		_, err := idx.ReplaceDocument(ctx, "a", []Entry{
			{ChunkID: "x", Vector: []float32{1, 0}, Metadata: meta("b", "u", 0)},
		})
		assert.True(t, services.IsInvalidParameterError(err))
	})

	t.Run("replaces all chunks", func(t *testing.T) {
		m := meta("a", "u", 0)
		m.ContentHash = "h2"
		removed, err := idx.ReplaceDocument(ctx, "a", []Entry{
			{ChunkID: "a-new-0", Vector: []float32{1, 0}, Metadata: m},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		hash, chunks, err := idx.DocumentFingerprint(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "h2", hash)
		assert.Equal(t, 1, chunks)

		size, _ := idx.Size(ctx)
		assert.Equal(t, 2, size)
	})
}

func TestMemoryIndex_DocumentFingerprintUnknown(t *testing.T) {
	idx := newTestIndex(t, 2)
	hash, chunks, err := idx.DocumentFingerprint(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, hash)
	assert.Zero(t, chunks)
}

func TestMemoryIndex_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 3)
	require.NoError(t, idx.Insert(ctx, "c1", []float32{0.1, 0.2, 0.3}, meta("d1", "u1", 0)))
	require.NoError(t, idx.Insert(ctx, "c2", []float32{0.3, 0.2, 0.1}, meta("d2", "u2", 0)))

	query := []float32{0.2, 0.2, 0.25}
	before, err := idx.Search(ctx, query, 2)
	require.NoError(t, err)

	data, err := idx.Snapshot()
	require.NoError(t, err)

	restored := newTestIndex(t, 3)
	require.NoError(t, restored.Restore(data))

	after, err := restored.Search(ctx, query, 2)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	stats, _ := restored.Stats(ctx)
	assert.Equal(t, IndexStats{DocumentCount: 2, ChunkCount: 2}, stats)
}

func TestMemoryIndex_RestoreRejectsBadSnapshots(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)
	require.NoError(t, idx.Insert(ctx, "keep", []float32{1, 0}, meta("d", "u", 0)))

	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"wrong version", `{"version":9,"dimension":2,"entries":[]}`},
		{"wrong dimension", `{"version":1,"dimension":3,"entries":[]}`},
		{"short vector", `{"version":1,"dimension":2,"entries":[{"chunk_id":"a","vector":[1],"metadata":{}}]}`},
		{"duplicate chunk", `{"version":1,"dimension":2,"entries":[{"chunk_id":"a","vector":[1,0],"metadata":{}},{"chunk_id":"a","vector":[1,0],"metadata":{}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, idx.Restore([]byte(tt.data)))

			size, _ := idx.Size(ctx)
			assert.Equal(t, 1, size, "index must be untouched")
		})
	}
}

func TestMemoryIndex_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 4)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc-%d", w)
			for i := 0; i < 25; i++ {
				_ = idx.Insert(ctx, fmt.Sprintf("%s-%d", doc, i), []float32{float32(w), float32(i), 1, 1}, meta(doc, "u", i))
				_, _ = idx.Search(ctx, []float32{1, 1, 1, 1}, 5)
			}
			if w%2 == 0 {
				_, _ = idx.RemoveByDocument(ctx, doc)
			}
		}(w)
	}
	wg.Wait()

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.DocumentCount)
	assert.Equal(t, 100, stats.ChunkCount)
}
