package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/pleader-ai/pleader-backend/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RetrievalResult), args.Error(1)
}

func retrieved(texts ...string) *RetrievalResult {
	result := &RetrievalResult{}
	for i, text := range texts {
		result.Chunks = append(result.Chunks, ScoredChunk{
			ChunkID:    "c" + string(rune('0'+i)),
			DocumentID: "doc",
			Position:   i,
			Filename:   "judgment.pdf",
			Text:       text,
			Score:      0.9 - float64(i)*0.1,
		})
	}
	return result
}

func TestAssembler_Answer(t *testing.T) {
	req := AnswerRequest{Query: "When can bail be cancelled?", OwnerID: "u1", TopK: 3, UseRerank: true}

	retriever := new(MockRetriever)
	result := retrieved("Bail may be cancelled on misuse of liberty.", "Section 439(2) empowers the High Court.")
	result.UsedRerank = true
	retriever.On("Retrieve", mock.Anything, RetrievalRequest{Query: req.Query, OwnerID: "u1", TopK: 3, UseRerank: true}).
		Return(result, nil)

	gen := &stubGenerator{responses: []string{"  Bail may be cancelled under Section 439(2) [Source 2].  "}}
	a := NewAssembler(retriever, gen, DefaultPrompts(), nil, AssemblerConfig{}, zap.NewNop())

	answer, err := a.Answer(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, answer.Found)
	assert.True(t, answer.UsedRerank)
	assert.Equal(t, "Bail may be cancelled under Section 439(2) [Source 2].", answer.AnswerText)
	assert.Equal(t, result.Chunks, answer.Citations)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Bail may be cancelled on misuse of liberty.")
	assert.Contains(t, gen.prompts[0], "Section 439(2) empowers the High Court.")
	assert.Contains(t, gen.prompts[0], "Answer ONLY from the context above.")
	retriever.AssertExpectations(t)
}

func TestAssembler_NoSupportingMaterial(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything).Return(&RetrievalResult{}, nil)
	gen := &stubGenerator{}
	a := NewAssembler(retriever, gen, DefaultPrompts(), nil, AssemblerConfig{}, zap.NewNop())

	answer, err := a.Answer(context.Background(), AnswerRequest{Query: "q", OwnerID: "u", TopK: 3})
	require.NoError(t, err)

	assert.False(t, answer.Found)
	assert.Equal(t, DefaultPrompts().NoMaterial(), answer.AnswerText)
	assert.Empty(t, answer.Citations)
	assert.Zero(t, gen.calls(), "generation must not be called without material")
}

func TestAssembler_RetrievalErrorPropagates(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything).
		Return(nil, services.NewRetrievalError(errors.New("embedding down")))
	a := NewAssembler(retriever, &stubGenerator{}, DefaultPrompts(), nil, AssemblerConfig{}, zap.NewNop())

	_, err := a.Answer(context.Background(), AnswerRequest{Query: "q", OwnerID: "u", TopK: 3})
	assert.True(t, services.IsRetrievalError(err))
}

func TestAssembler_GenerationFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{"generator error", &stubGenerator{err: errors.New("timeout")}},
		{"blank answer", &stubGenerator{responses: []string{"   \n"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := new(MockRetriever)
			retriever.On("Retrieve", mock.Anything, mock.Anything).Return(retrieved("text"), nil)
			a := NewAssembler(retriever, tt.gen, DefaultPrompts(), nil, AssemblerConfig{}, zap.NewNop())

			answer, err := a.Answer(context.Background(), AnswerRequest{Query: "q", OwnerID: "u", TopK: 3})
			assert.Nil(t, answer)
			require.Error(t, err)
			assert.True(t, services.IsAnswerGenerationError(err))
		})
	}
}

func TestAssembler_ContextBudget(t *testing.T) {
	long := string(make([]byte, 400))
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.Anything).Return(retrieved(long, long, long), nil)
	gen := &stubGenerator{responses: []string{"answer"}}

	a := NewAssembler(retriever, gen, DefaultPrompts(), EstimateCounter{}, AssemblerConfig{MaxContextTokens: 150}, zap.NewNop())
	answer, err := a.Answer(context.Background(), AnswerRequest{Query: "q", OwnerID: "u", TopK: 3})
	require.NoError(t, err)
	assert.Len(t, answer.Citations, 1)

	a = NewAssembler(retriever, gen, DefaultPrompts(), EstimateCounter{}, AssemblerConfig{MaxContextTokens: 10}, zap.NewNop())
	answer, err = a.Answer(context.Background(), AnswerRequest{Query: "q", OwnerID: "u", TopK: 3})
	require.NoError(t, err)
	assert.Len(t, answer.Citations, 1, "top passage is kept even over budget")
}
