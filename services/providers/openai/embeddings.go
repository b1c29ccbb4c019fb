package openai

import (
	"context"
	"fmt"

	"github.com/pleader-ai/pleader-backend/services"
	"github.com/pleader-ai/pleader-backend/services/providers"
	"github.com/pleader-ai/pleader-backend/services/rag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ rag.Embedder = (*Embedder)(nil)

// Embedding defaults
const (
	DefaultEmbeddingModel       = "text-embedding-3-small"
	DefaultEmbeddingBatchSize   = 64
	DefaultEmbeddingConcurrency = 4
)

// Known output dimensions of OpenAI embedding models
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// EmbedderConfig configures the embeddings client
type EmbedderConfig struct {
	Provider providers.ProviderConfig
	Model    string
	// Dimension requested from text-embedding-3 models; 0 uses the model default
	Dimension   int
	BatchSize   int
	Concurrency int
}

// Embedder turns text into vectors with the OpenAI embeddings endpoint.
// Each request is retried once on a 5xx response or a timeout.
type Embedder struct {
	*client
	model       string
	dimension   int
	sendDim     bool
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// NewEmbedder creates an embeddings client
func NewEmbedder(config EmbedderConfig, logger *zap.Logger) (*Embedder, error) {
	if config.Provider.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultEmbeddingModel
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultEmbeddingBatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultEmbeddingConcurrency
	}

	dimension, known := modelDimensions[config.Model]
	sendDim := false
	if config.Dimension > 0 && config.Dimension != dimension {
		if config.Model == "text-embedding-ada-002" {
			return nil, fmt.Errorf("openai: model %s does not support custom dimensions", config.Model)
		}
		dimension = config.Dimension
		sendDim = known
	}
	if dimension == 0 {
		return nil, fmt.Errorf("openai: unknown dimension for model %s", config.Model)
	}

	config.Provider.MaxRetries = 1
	return &Embedder{
		client:      newClient(config.Provider),
		model:       config.Model,
		dimension:   dimension,
		sendDim:     sendDim,
		batchSize:   config.BatchSize,
		concurrency: config.Concurrency,
		logger:      logger,
	}, nil
}

// Dimension returns the vector length produced by the model
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed embeds a single text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany embeds texts in batches, preserving input order. Any failed
// batch fails the whole call.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			return e.embedBatch(gctx, texts[start:end], out[start:end])
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Error("embedding request failed",
			zap.String("model", e.model),
			zap.Int("texts", len(texts)),
			zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string, out [][]float32) error {
	req := embeddingRequest{Model: e.model, Input: batch, EncodingFormat: "float"}
	if e.sendDim {
		req.Dimensions = e.dimension
	}

	var resp embeddingResponse
	if _, err := e.postJSON(ctx, "/embeddings", req, &resp); err != nil {
		return services.NewEmbeddingServiceError("embedding request failed", err)
	}

	if len(resp.Data) != len(batch) {
		return services.NewEmbeddingServiceError(
			fmt.Sprintf("malformed embedding response: expected %d embeddings, got %d", len(batch), len(resp.Data)), nil)
	}
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(batch) || out[item.Index] != nil {
			return services.NewEmbeddingServiceError(
				fmt.Sprintf("malformed embedding response: bad index %d", item.Index), nil)
		}
		if len(item.Embedding) != e.dimension {
			return services.NewDimensionMismatchError(e.dimension, len(item.Embedding))
		}
		out[item.Index] = item.Embedding
	}
	return nil
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}
