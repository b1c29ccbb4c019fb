package rag

import (
	"fmt"
	"iter"

	"github.com/pleader-ai/pleader-backend/services"
)

const (
	// DefaultChunkSize is the window length in characters
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the number of characters shared by adjacent windows
	DefaultChunkOverlap = 100
)

// Chunker splits text into overlapping fixed-size windows.
//
// Sizes are measured in runes so multi-byte characters are never split.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the window parameters. overlap must satisfy
// 0 <= overlap < size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, services.NewInvalidParameterError(fmt.Sprintf("chunk size must be positive, got %d", size))
	}
	if overlap < 0 {
		return nil, services.NewInvalidParameterError(fmt.Sprintf("chunk overlap must not be negative, got %d", overlap))
	}
	if overlap >= size {
		return nil, services.NewInvalidParameterError(
			fmt.Sprintf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size))
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window length
func (c *Chunker) Size() int { return c.size }

// Overlap returns the shared prefix length between adjacent windows
func (c *Chunker) Overlap() int { return c.overlap }

// Windows yields (position, chunk) pairs lazily. The sequence can be ranged
// over any number of times.
//
// Window i starts at i*(size-overlap). Iteration stops at the first window
// that reaches the end of the text, so no trailing window lies entirely
// inside the previous one.
func (c *Chunker) Windows(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		runes := []rune(text)
		step := c.size - c.overlap
		for pos, start := 0, 0; start < len(runes); pos, start = pos+1, start+step {
			end := min(start+c.size, len(runes))
			if !yield(pos, string(runes[start:end])) {
				return
			}
			if end == len(runes) {
				return
			}
		}
	}
}

// Chunk returns every window of text in order. Empty text yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	var chunks []string
	for _, chunk := range c.Windows(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// ChunkText is a convenience wrapper around NewChunker and Chunk.
func ChunkText(text string, size, overlap int) ([]string, error) {
	c, err := NewChunker(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunk(text), nil
}
