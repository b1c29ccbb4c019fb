package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RerankStatus tells whether the reranker produced its own ordering.
type RerankStatus int

const (
	// RerankRanked means the model's ordering was applied
	RerankRanked RerankStatus = iota
	// RerankFallback means candidates are returned in their original order
	RerankFallback
)

func (s RerankStatus) String() string {
	if s == RerankRanked {
		return "ranked"
	}
	return "fallback_original_order"
}

// RerankOutcome is the result of a rerank call. Reason is set only for
// fallbacks.
type RerankOutcome struct {
	Status RerankStatus
	Chunks []ScoredChunk
	Reason error
}

// Ranked reports whether the model ordering was used
func (o RerankOutcome) Ranked() bool { return o.Status == RerankRanked }

var errNoRanking = errors.New("response contains no ranking")

// DefaultRerankPassageChars bounds each passage quoted in the rerank prompt.
const DefaultRerankPassageChars = 500

// Reranker reorders retrieval candidates with a single generation call.
type Reranker struct {
	generator       Generator
	prompts         *Prompts
	timeout         time.Duration
	maxPassageChars int
	logger          *zap.Logger
}

// NewReranker creates a reranker. A zero timeout means the caller's context
// alone bounds the call.
func NewReranker(generator Generator, prompts *Prompts, timeout time.Duration, logger *zap.Logger) *Reranker {
	return &Reranker{
		generator:       generator,
		prompts:         prompts,
		timeout:         timeout,
		maxPassageChars: DefaultRerankPassageChars,
		logger:          logger,
	}
}

// Rerank orders candidates by model-judged relevance to query. It never
// fails: any problem yields a fallback outcome carrying the original order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []ScoredChunk) RerankOutcome {
	if len(candidates) < 2 {
		return RerankOutcome{Status: RerankRanked, Chunks: candidates}
	}

	passages := make([]PromptPassage, len(candidates))
	for i, c := range candidates {
		passages[i] = PromptPassage{
			Number:   i + 1,
			Filename: c.Filename,
			Position: c.Position,
			Text:     truncateRunes(c.Text, r.maxPassageChars),
		}
	}

	prompt, err := r.prompts.RenderRerank(query, passages)
	if err != nil {
		return r.fallback(candidates, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	response, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return r.fallback(candidates, fmt.Errorf("rerank generation failed: %w", err))
	}

	order, err := parseRanking(response, len(candidates))
	if err != nil {
		return r.fallback(candidates, err)
	}

	ranked := make([]ScoredChunk, 0, len(candidates))
	for _, idx := range order {
		ranked = append(ranked, candidates[idx])
	}

	r.logger.Debug("reranked candidates",
		zap.Int("candidates", len(candidates)),
		zap.Ints("order", order))

	return RerankOutcome{Status: RerankRanked, Chunks: ranked}
}

func (r *Reranker) fallback(candidates []ScoredChunk, reason error) RerankOutcome {
	r.logger.Warn("rerank failed, keeping similarity order",
		zap.Int("candidates", len(candidates)),
		zap.Error(reason))
	return RerankOutcome{Status: RerankFallback, Chunks: candidates, Reason: reason}
}

// parseRanking extracts the first JSON integer array from response and
// converts its 1-based passage numbers into a complete 0-based permutation.
// Duplicates are ignored and omitted passages are appended in their
// original order. Out-of-range numbers invalidate the whole response.
func parseRanking(response string, n int) ([]int, error) {
	start := strings.IndexByte(response, '[')
	if start < 0 {
		return nil, errNoRanking
	}
	end := strings.IndexByte(response[start:], ']')
	if end < 0 {
		return nil, errNoRanking
	}

	var numbers []int
	if err := json.Unmarshal([]byte(response[start:start+end+1]), &numbers); err != nil {
		return nil, fmt.Errorf("invalid ranking array: %w", err)
	}
	if len(numbers) == 0 {
		return nil, errNoRanking
	}

	seen := make([]bool, n)
	order := make([]int, 0, n)
	for _, num := range numbers {
		if num < 1 || num > n {
			return nil, fmt.Errorf("ranking references passage %d of %d", num, n)
		}
		if seen[num-1] {
			continue
		}
		seen[num-1] = true
		order = append(order, num-1)
	}
	for i := range seen {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
