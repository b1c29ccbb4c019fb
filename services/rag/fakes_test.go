package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// stubGenerator returns canned responses and records prompts.
type stubGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(g.responses) == 0 {
		return "", errors.New("no response configured")
	}
	r := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return r, nil
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// keywordEmbedder maps text onto a small fixed vocabulary so cosine
// similarity reflects shared keywords.
type keywordEmbedder struct {
	vocab   []string
	mu      sync.Mutex
	calls   int
	failOn  int
	failErr error
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab}
}

func (e *keywordEmbedder) Dimension() int { return len(e.vocab) }

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *keywordEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		e.mu.Lock()
		e.calls++
		call := e.calls
		e.mu.Unlock()
		if e.failErr != nil && (e.failOn == 0 || call == e.failOn) {
			return nil, e.failErr
		}

		v := make([]float32, len(e.vocab))
		lower := strings.ToLower(text)
		for i, word := range e.vocab {
			v[i] = float32(strings.Count(lower, word))
		}
		out = append(out, v)
	}
	return out, nil
}
