package rag

import (
	"context"
	"strings"
	"time"

	"github.com/pleader-ai/pleader-backend/services"
	"go.uber.org/zap"
)

const (
	// DefaultTopK is the number of passages returned when none is requested
	DefaultTopK = 3

	// DefaultRerankOverfetch multiplies topK when gathering rerank candidates
	DefaultRerankOverfetch = 2
)

// RetrievalRequest describes a single owner-scoped query.
type RetrievalRequest struct {
	Query     string
	OwnerID   string
	TopK      int
	UseRerank bool
}

// RetrievalResult holds ranked passages for a query.
type RetrievalResult struct {
	Chunks     []ScoredChunk
	UsedRerank bool
}

// Empty reports whether nothing was retrieved
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Chunks) == 0
}

// ChunkRetriever is satisfied by Retriever.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error)
}

// RetrieverConfig tunes retrieval.
type RetrieverConfig struct {
	// RerankOverfetch multiplies topK when reranking is requested
	RerankOverfetch int
	// EmbedTimeout bounds the query embedding call
	EmbedTimeout time.Duration
}

// Retriever embeds a query, searches the index, restricts hits to the
// requesting owner and optionally reranks them.
type Retriever struct {
	embedder Embedder
	index    Index
	reranker *Reranker
	config   RetrieverConfig
	logger   *zap.Logger
}

// NewRetriever creates a retriever. reranker may be nil, in which case
// rerank requests keep similarity order.
func NewRetriever(embedder Embedder, index Index, reranker *Reranker, config RetrieverConfig, logger *zap.Logger) *Retriever {
	if config.RerankOverfetch < 1 {
		config.RerankOverfetch = DefaultRerankOverfetch
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		config:   config,
		logger:   logger,
	}
}

// Retrieve returns up to TopK passages owned by req.OwnerID.
//
// The index is shared across owners, so hits are filtered after the
// similarity search. When filtering leaves too few candidates the search is
// repeated with a doubled limit until enough are found or the index is
// exhausted.
func (r *Retriever) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, services.ErrEmptyQuery
	}
	if req.TopK <= 0 {
		return nil, services.NewInvalidParameterError("top_k must be positive")
	}
	if req.OwnerID == "" {
		return nil, services.NewInvalidParameterError("owner ID must not be empty")
	}

	size, err := r.index.Size(ctx)
	if err != nil {
		return nil, services.NewRetrievalError(err)
	}
	if size == 0 {
		return &RetrievalResult{}, nil
	}

	embedCtx := ctx
	if r.config.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, r.config.EmbedTimeout)
		defer cancel()
	}
	vector, err := r.embedder.Embed(embedCtx, query)
	if err != nil {
		r.logger.Error("failed to embed query", zap.String("owner_id", req.OwnerID), zap.Error(err))
		return nil, services.NewRetrievalError(err)
	}

	want := req.TopK
	if req.UseRerank {
		want *= r.config.RerankOverfetch
	}

	candidates, err := r.searchOwned(ctx, vector, req.OwnerID, want, size)
	if err != nil {
		return nil, services.NewRetrievalError(err)
	}

	result := &RetrievalResult{Chunks: candidates}
	if req.UseRerank && r.reranker != nil && len(candidates) > 1 {
		outcome := r.reranker.Rerank(ctx, query, candidates)
		result.Chunks = outcome.Chunks
		result.UsedRerank = outcome.Ranked()
	}

	if len(result.Chunks) > req.TopK {
		result.Chunks = result.Chunks[:req.TopK]
	}

	r.logger.Debug("retrieved passages",
		zap.String("owner_id", req.OwnerID),
		zap.Int("top_k", req.TopK),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(result.Chunks)),
		zap.Bool("used_rerank", result.UsedRerank))

	return result, nil
}

// searchOwned returns up to want hits belonging to ownerID, widening the
// search while filtering starves it until the whole index has been asked for.
func (r *Retriever) searchOwned(ctx context.Context, vector []float32, ownerID string, want, size int) ([]ScoredChunk, error) {
	fetch := min(want, size)
	for {
		hits, err := r.index.Search(ctx, vector, fetch)
		if err != nil {
			return nil, err
		}

		owned := make([]ScoredChunk, 0, want)
		for _, h := range hits {
			if h.Metadata.OwnerID != ownerID {
				continue
			}
			owned = append(owned, scoredChunkFromHit(h))
			if len(owned) == want {
				break
			}
		}

		// A short page is not proof of exhaustion: approximate indexes may
		// return fewer than fetch rows while unseen entries remain.
		if len(owned) >= want || fetch >= size {
			return owned, nil
		}
		fetch = min(fetch*2, size)
	}
}
