package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pleader-ai/pleader-backend/services"
	"go.uber.org/zap"
)

var errEmptyAnswer = errors.New("model returned an empty answer")

// DefaultContextTokens bounds the passages placed in an answer prompt.
const DefaultContextTokens = 3000

// AnswerRequest is a user question scoped to one owner's documents.
type AnswerRequest struct {
	Query     string
	OwnerID   string
	TopK      int
	UseRerank bool
}

// GroundedAnswer is a generated answer and the passages it was built from.
type GroundedAnswer struct {
	AnswerText string        `json:"answer"`
	Citations  []ScoredChunk `json:"citations"`
	UsedRerank bool          `json:"used_rerank"`
	// Found is false when no supporting material was retrieved
	Found bool `json:"found"`
}

// AssemblerConfig tunes answer generation.
type AssemblerConfig struct {
	// GenerateTimeout bounds the generation call
	GenerateTimeout time.Duration
	// MaxContextTokens caps the passage text placed in the prompt. The top
	// passage is always included.
	MaxContextTokens int
}

// Assembler turns retrieved passages into a grounded, cited answer.
type Assembler struct {
	retriever ChunkRetriever
	generator Generator
	prompts   *Prompts
	tokens    TokenCounter
	config    AssemblerConfig
	logger    *zap.Logger
}

// NewAssembler creates an assembler. A nil token counter uses EstimateCounter.
func NewAssembler(retriever ChunkRetriever, generator Generator, prompts *Prompts, tokens TokenCounter, config AssemblerConfig, logger *zap.Logger) *Assembler {
	if tokens == nil {
		tokens = EstimateCounter{}
	}
	if config.MaxContextTokens <= 0 {
		config.MaxContextTokens = DefaultContextTokens
	}
	return &Assembler{
		retriever: retriever,
		generator: generator,
		prompts:   prompts,
		tokens:    tokens,
		config:    config,
		logger:    logger,
	}
}

// Answer retrieves supporting passages and asks the model to answer from
// them alone. Citations are exactly the passages placed in the prompt.
func (a *Assembler) Answer(ctx context.Context, req AnswerRequest) (*GroundedAnswer, error) {
	result, err := a.retriever.Retrieve(ctx, RetrievalRequest{
		Query:     req.Query,
		OwnerID:   req.OwnerID,
		TopK:      req.TopK,
		UseRerank: req.UseRerank,
	})
	if err != nil {
		return nil, err
	}

	if result.Empty() {
		a.logger.Info("no supporting material found", zap.String("owner_id", req.OwnerID))
		return &GroundedAnswer{
			AnswerText: a.prompts.NoMaterial(),
			Citations:  []ScoredChunk{},
			UsedRerank: result.UsedRerank,
			Found:      false,
		}, nil
	}

	cited := a.fitBudget(result.Chunks)
	passages := make([]PromptPassage, len(cited))
	for i, c := range cited {
		passages[i] = PromptPassage{
			Number:   i + 1,
			Filename: c.Filename,
			Position: c.Position,
			Text:     c.Text,
		}
	}

	prompt, err := a.prompts.RenderAnswer(strings.TrimSpace(req.Query), passages)
	if err != nil {
		return nil, services.NewAnswerGenerationError(err)
	}

	genCtx := ctx
	if a.config.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, a.config.GenerateTimeout)
		defer cancel()
	}

	text, err := a.generator.Generate(genCtx, prompt)
	if err != nil {
		a.logger.Error("answer generation failed",
			zap.String("owner_id", req.OwnerID),
			zap.Int("passages", len(cited)),
			zap.Error(err))
		return nil, services.NewAnswerGenerationError(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.NewAnswerGenerationError(errEmptyAnswer)
	}

	a.logger.Info("generated grounded answer",
		zap.String("owner_id", req.OwnerID),
		zap.Int("citations", len(cited)),
		zap.Bool("used_rerank", result.UsedRerank))

	return &GroundedAnswer{
		AnswerText: text,
		Citations:  cited,
		UsedRerank: result.UsedRerank,
		Found:      true,
	}, nil
}

// fitBudget keeps passages in rank order until the token budget is spent
func (a *Assembler) fitBudget(chunks []ScoredChunk) []ScoredChunk {
	used := 0
	for i, c := range chunks {
		used += a.tokens.Count(c.Text)
		if i > 0 && used > a.config.MaxContextTokens {
			a.logger.Debug("dropping passages over context budget",
				zap.Int("kept", i),
				zap.Int("dropped", len(chunks)-i))
			return chunks[:i]
		}
	}
	return chunks
}
