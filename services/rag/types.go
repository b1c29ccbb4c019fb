package rag

import (
	"context"
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	// Embed returns the vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany returns one vector per input, in input order
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of every vector this embedder produces
	Dimension() int
}

// Generator produces free text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChunkMetadata is stored alongside each indexed vector.
type ChunkMetadata struct {
	DocumentID  string `json:"document_id"`
	OwnerID     string `json:"owner_id"`
	Position    int    `json:"position"`
	Text        string `json:"text"`
	Filename    string `json:"filename,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

// Entry is one vector ready to be written to an index.
type Entry struct {
	ChunkID  string
	Vector   []float32
	Metadata ChunkMetadata
}

// Hit is a single search match.
type Hit struct {
	ChunkID  string
	Score    float64
	Metadata ChunkMetadata
}

// ScoredChunk is a retrieved passage with its similarity to the query.
type ScoredChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	OwnerID    string  `json:"owner_id"`
	Position   int     `json:"position"`
	Text       string  `json:"text"`
	Filename   string  `json:"filename,omitempty"`
	Score      float64 `json:"score"`
}

func scoredChunkFromHit(h Hit) ScoredChunk {
	return ScoredChunk{
		ChunkID:    h.ChunkID,
		DocumentID: h.Metadata.DocumentID,
		OwnerID:    h.Metadata.OwnerID,
		Position:   h.Metadata.Position,
		Text:       h.Metadata.Text,
		Filename:   h.Metadata.Filename,
		Score:      h.Score,
	}
}

// IndexStats summarises index contents.
type IndexStats struct {
	DocumentCount int `json:"document_count"`
	ChunkCount    int `json:"chunk_count"`
}

// Index stores chunk vectors and answers nearest-neighbour queries.
//
// Implementations must be safe for concurrent use. Every stored vector has
// length Dimension().
type Index interface {
	// Insert adds or replaces a single entry
	Insert(ctx context.Context, chunkID string, vector []float32, meta ChunkMetadata) error

	// ReplaceDocument atomically drops every entry of documentID and inserts
	// entries in its place. It returns the number of entries removed. If any
	// entry is invalid the index is left unchanged.
	ReplaceDocument(ctx context.Context, documentID string, entries []Entry) (int, error)

	// Search returns at most k entries ordered by descending cosine similarity
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Remove deletes a chunk. Removing an unknown chunk is a no-op.
	Remove(ctx context.Context, chunkID string) error

	// RemoveByDocument deletes every chunk of a document and returns how many were removed
	RemoveByDocument(ctx context.Context, documentID string) (int, error)

	// Size returns the number of stored entries
	Size(ctx context.Context) (int, error)

	// Stats returns document and chunk counts
	Stats(ctx context.Context) (IndexStats, error)

	// DocumentFingerprint returns the content hash recorded for a document
	// and how many chunks it has. chunks is zero for unknown documents.
	DocumentFingerprint(ctx context.Context, documentID string) (hash string, chunks int, err error)

	// Dimension returns the vector length accepted by the index
	Dimension() int
}

// Snapshotter is implemented by indexes whose full state can be serialised.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}
