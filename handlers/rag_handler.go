package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pleader-ai/pleader-backend/middleware"
	"github.com/pleader-ai/pleader-backend/services/rag"
	"github.com/pleader-ai/pleader-backend/utils"
	"go.uber.org/zap"
)

// previewChars is the length of source and document previews
const previewChars = 200

// QueryRequest represents a question about the caller's documents
type QueryRequest struct {
	Query     string `json:"query" validate:"required,max=4000"`
	TopK      *int   `json:"top_k,omitempty" validate:"omitempty,min=1,max=20"`
	UseRerank *bool  `json:"use_rerank,omitempty"`
}

// SourceResponse is one passage an answer was built from
type SourceResponse struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Position   int     `json:"position"`
	Preview    string  `json:"preview"`
	Score      float64 `json:"score"`
}

// QueryResponse is a grounded answer and its sources
type QueryResponse struct {
	Answer     string           `json:"answer"`
	Sources    []SourceResponse `json:"sources"`
	NumSources int              `json:"num_sources"`
	UsedRerank bool             `json:"used_rerank"`
	Found      bool             `json:"found"`
}

// StatsResponse describes the vector index
type StatsResponse struct {
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	IndexBackend  string `json:"index_backend"`
	Dimension     int    `json:"dimension"`
}

// Answerer produces grounded answers
type Answerer interface {
	Answer(ctx context.Context, req rag.AnswerRequest) (*rag.GroundedAnswer, error)
}

// RAGHandlerConfig holds query defaults and index facts for responses
type RAGHandlerConfig struct {
	DefaultTopK   int
	DefaultRerank bool
	IndexBackend  string
	Dimension     int
}

// RAGHandler handles question answering over uploaded documents
type RAGHandler struct {
	answerer Answerer
	index    IndexStatter
	config   RAGHandlerConfig
	logger   *zap.Logger
}

// NewRAGHandler creates a new RAGHandler
func NewRAGHandler(answerer Answerer, index IndexStatter, config RAGHandlerConfig, logger *zap.Logger) *RAGHandler {
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = rag.DefaultTopK
	}
	return &RAGHandler{
		answerer: answerer,
		index:    index,
		config:   config,
		logger:   logger,
	}
}

// HandleQuery handles POST /api/v1/rag/query
func (h *RAGHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	ownerID := middleware.GetOwnerIDFromContext(ctx)
	if ownerID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	topK := h.config.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	useRerank := h.config.DefaultRerank
	if req.UseRerank != nil {
		useRerank = *req.UseRerank
	}

	h.logger.Debug("answering query",
		zap.String("request_id", requestID),
		zap.String("owner_id", ownerID),
		zap.Int("top_k", topK),
		zap.Bool("use_rerank", useRerank))

	answer, err := h.answerer.Answer(ctx, rag.AnswerRequest{
		Query:     strings.TrimSpace(req.Query),
		OwnerID:   ownerID,
		TopK:      topK,
		UseRerank: useRerank,
	})
	if err != nil {
		h.logger.Error("failed to answer query",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	sources := make([]SourceResponse, len(answer.Citations))
	for i, c := range answer.Citations {
		sources[i] = SourceResponse{
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Position:   c.Position,
			Preview:    preview(c.Text, previewChars),
			Score:      c.Score,
		}
	}

	h.logger.Info("query answered",
		zap.String("request_id", requestID),
		zap.Int("sources", len(sources)),
		zap.Bool("found", answer.Found),
		zap.Bool("used_rerank", answer.UsedRerank))

	if err := utils.WriteOK(w, QueryResponse{
		Answer:     answer.AnswerText,
		Sources:    sources,
		NumSources: len(sources),
		UsedRerank: answer.UsedRerank,
		Found:      answer.Found,
	}); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleStats handles GET /api/v1/rag/stats
func (h *RAGHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, StatsResponse{
		DocumentCount: stats.DocumentCount,
		ChunkCount:    stats.ChunkCount,
		IndexBackend:  h.config.IndexBackend,
		Dimension:     h.config.Dimension,
	})
}

// preview returns at most n characters of text
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
