package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pleader-ai/pleader-backend/services"
	"github.com/pleader-ai/pleader-backend/services/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAnswerer is a mock implementation of Answerer
type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, req rag.AnswerRequest) (*rag.GroundedAnswer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rag.GroundedAnswer), args.Error(1)
}

func queryRequest(t *testing.T, body interface{}) *http.Request {
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return withOwner(req, "user-1")
}

func newRAGHandler(answerer Answerer, index IndexStatter) *RAGHandler {
	return NewRAGHandler(answerer, index, RAGHandlerConfig{
		DefaultTopK:   3,
		DefaultRerank: true,
		IndexBackend:  "memory",
		Dimension:     1536,
	}, zap.NewNop())
}

func TestHandleQuery(t *testing.T) {
	t.Run("defaults and sources", func(t *testing.T) {
		answerer := new(MockAnswerer)
		handler := newRAGHandler(answerer, nil)

		longText := strings.Repeat("a", 250)
		answerer.On("Answer", mock.Anything, rag.AnswerRequest{
			Query:     "What is anticipatory bail?",
			OwnerID:   "user-1",
			TopK:      3,
			UseRerank: true,
		}).Return(&rag.GroundedAnswer{
			AnswerText: "Anticipatory bail is granted under Section 438 [Source 1].",
			Citations: []rag.ScoredChunk{
				{DocumentID: "doc-1", Filename: "crpc.pdf", Position: 4, Text: longText, Score: 0.91},
			},
			UsedRerank: false,
			Found:      true,
		}, nil)

		w := httptest.NewRecorder()
		handler.HandleQuery(w, queryRequest(t, map[string]interface{}{"query": "  What is anticipatory bail?  "}))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data QueryResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.True(t, response.Data.Found)
		assert.False(t, response.Data.UsedRerank)
		assert.Equal(t, 1, response.Data.NumSources)
		require.Len(t, response.Data.Sources, 1)
		assert.Equal(t, "crpc.pdf", response.Data.Sources[0].Filename)
		assert.Equal(t, 4, response.Data.Sources[0].Position)
		assert.Equal(t, strings.Repeat("a", 200)+"...", response.Data.Sources[0].Preview)
		answerer.AssertExpectations(t)
	})

	t.Run("explicit top_k and rerank off", func(t *testing.T) {
		answerer := new(MockAnswerer)
		handler := newRAGHandler(answerer, nil)

		answerer.On("Answer", mock.Anything, rag.AnswerRequest{
			Query:     "limitation period",
			OwnerID:   "user-1",
			TopK:      5,
			UseRerank: false,
		}).Return(&rag.GroundedAnswer{
			AnswerText: "No supporting material.",
			Citations:  []rag.ScoredChunk{},
			Found:      false,
		}, nil)

		w := httptest.NewRecorder()
		handler.HandleQuery(w, queryRequest(t, map[string]interface{}{
			"query": "limitation period", "top_k": 5, "use_rerank": false,
		}))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"found":false`)
		assert.Contains(t, w.Body.String(), `"sources":[]`)
		answerer.AssertExpectations(t)
	})

	t.Run("validation", func(t *testing.T) {
		answerer := new(MockAnswerer)
		handler := newRAGHandler(answerer, nil)

		for _, body := range []map[string]interface{}{
			{"query": ""},
			{"query": "x", "top_k": 0},
			{"query": "x", "top_k": 21},
		} {
			w := httptest.NewRecorder()
			handler.HandleQuery(w, queryRequest(t, body))
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
		answerer.AssertNotCalled(t, "Answer")
	})

	t.Run("malformed body", func(t *testing.T) {
		handler := newRAGHandler(new(MockAnswerer), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/query", strings.NewReader("{"))
		w := httptest.NewRecorder()
		handler.HandleQuery(w, withOwner(req, "user-1"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		handler := newRAGHandler(new(MockAnswerer), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/query", strings.NewReader(`{"query":"x"}`))
		w := httptest.NewRecorder()
		handler.HandleQuery(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("generation failure maps to 502", func(t *testing.T) {
		answerer := new(MockAnswerer)
		handler := newRAGHandler(answerer, nil)

		answerer.On("Answer", mock.Anything, mock.Anything).
			Return(nil, services.NewAnswerGenerationError(errors.New("timeout")))

		w := httptest.NewRecorder()
		handler.HandleQuery(w, queryRequest(t, map[string]interface{}{"query": "x"}))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), services.MsgAnswerGenerationFailed)
	})

	t.Run("whitespace query maps to 400", func(t *testing.T) {
		answerer := new(MockAnswerer)
		handler := newRAGHandler(answerer, nil)

		answerer.On("Answer", mock.Anything, mock.Anything).Return(nil, services.ErrEmptyQuery)

		w := httptest.NewRecorder()
		handler.HandleQuery(w, queryRequest(t, map[string]interface{}{"query": "   "}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleStats(t *testing.T) {
	t.Run("reports index contents", func(t *testing.T) {
		handler := newRAGHandler(nil, stubStats{stats: rag.IndexStats{DocumentCount: 2, ChunkCount: 7}})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/rag/stats", nil)
		w := httptest.NewRecorder()
		handler.HandleStats(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data StatsResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, StatsResponse{DocumentCount: 2, ChunkCount: 7, IndexBackend: "memory", Dimension: 1536}, response.Data)
	})

	t.Run("index failure", func(t *testing.T) {
		handler := newRAGHandler(nil, stubStats{err: services.WrapInternal("failed to count chunks", errors.New("closed"))})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/rag/stats", nil)
		w := httptest.NewRecorder()
		handler.HandleStats(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 200))
	assert.Equal(t, "ab...", preview("abc", 2))
	assert.Equal(t, "धा...", preview("धारा", 2))
}
