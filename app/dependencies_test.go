package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pleader-ai/pleader-backend/auth"
	"github.com/pleader-ai/pleader-backend/config"
	"github.com/pleader-ai/pleader-backend/repositories/postgres"
	"github.com/pleader-ai/pleader-backend/services"
	"github.com/pleader-ai/pleader-backend/services/providers"
	"github.com/pleader-ai/pleader-backend/services/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testDimension = 8

// letterEmbedder maps text to letter frequencies folded into a small vector
type letterEmbedder struct{}

func (letterEmbedder) Dimension() int { return testDimension }

func (e letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDimension)
	vec[0] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[int(r-'a')%testDimension]++
		}
	}
	return vec, nil
}

func (e letterEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

// cannedProvider answers every chat request with the same text
type cannedProvider struct {
	content string
}

func (p cannedProvider) Name() string { return generationProvider }

func (p cannedProvider) ChatCompletion(_ context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{
		Model:   req.Model,
		Choices: []providers.Choice{{Message: providers.Message{Role: providers.RoleAssistant, Content: p.content}}},
	}, nil
}

func (p cannedProvider) IsAvailable(context.Context) bool { return true }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.Environment = "test"
	cfg.Database = config.DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "pleader",
		Password:        "pleader",
		Database:        "pleader_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Embedding.Dimension = testDimension
	cfg.RAG.IndexBackend = config.IndexBackendMemory
	cfg.RAG.SnapshotStore = config.SnapshotStoreSQLite
	cfg.RAG.SQLitePath = filepath.Join(t.TempDir(), "index.db")
	cfg.RAG.ChunkSize = 40
	cfg.RAG.ChunkOverlap = 10
	return cfg
}

// wire builds dependencies on top of a mocked database, a local embedder and
// an optional chat provider
func wire(t *testing.T, cfg *config.Config, provider providers.Provider) *Dependencies {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	pdb := postgres.NewDBFromConn(db, logger)
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		DB:          pdb,
		RepoFactory: postgres.NewRepositoryFactoryFromDB(pdb, logger),
		Embedder:    letterEmbedder{},
	}
	deps.closers = append(deps.closers, deps.RepoFactory.Close)

	require.NoError(t, deps.initRepositories())

	deps.ProviderRegistry = providers.NewRegistry()
	if provider != nil {
		require.NoError(t, deps.ProviderRegistry.Register(provider))
	}

	require.NoError(t, deps.initPipeline(context.Background(), cfg))
	deps.initServices(cfg)
	require.NoError(t, deps.initAuth(cfg))
	deps.initHandlers(cfg)
	return deps
}

func TestDependenciesWiring(t *testing.T) {
	ctx := context.Background()

	t.Run("all components are wired", func(t *testing.T) {
		cfg := testConfig(t)
		deps := wire(t, cfg, cannedProvider{content: "answer"})

		assert.NotNil(t, deps.Documents)
		assert.NotNil(t, deps.Snapshots)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.Index)
		assert.NotNil(t, deps.Manager)
		assert.NotNil(t, deps.Retriever)
		assert.NotNil(t, deps.Assembler)
		assert.NotNil(t, deps.Extractor)
		assert.NotNil(t, deps.DocumentService)
		assert.NotNil(t, deps.TokenValidator)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.BodyLimit)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.DocumentHandler)
		assert.NotNil(t, deps.RAGHandler)
		assert.Equal(t, testDimension, deps.Index.Dimension())

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("sqlite snapshot survives a restart", func(t *testing.T) {
		cfg := testConfig(t)

		first := wire(t, cfg, cannedProvider{content: "answer"})
		chunks, err := first.Manager.AddDocument(ctx, rag.DocumentInput{
			DocumentID: "doc-1",
			OwnerID:    "user-1",
			Filename:   "bail.txt",
			Text:       strings.Repeat("The Sessions Court granted anticipatory bail. ", 4),
		})
		require.NoError(t, err)
		require.Greater(t, chunks, 0)
		require.NoError(t, first.Close(ctx))

		second := wire(t, cfg, cannedProvider{content: "answer"})
		defer second.Close(ctx)

		stats, err := second.Manager.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.DocumentCount)
		assert.Equal(t, chunks, stats.ChunkCount)
	})

	t.Run("answers from indexed documents", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RAG.SnapshotStore = config.SnapshotStoreNone
		deps := wire(t, cfg, cannedProvider{content: "Bail was granted [Source 1]."})
		defer deps.Close(ctx)

		_, err := deps.Manager.AddDocument(ctx, rag.DocumentInput{
			DocumentID: "doc-1",
			OwnerID:    "user-1",
			Filename:   "bail.txt",
			Text:       "The Sessions Court granted anticipatory bail to the applicant.",
		})
		require.NoError(t, err)

		answer, err := deps.Assembler.Answer(ctx, rag.AnswerRequest{
			Query:   "was bail granted?",
			OwnerID: "user-1",
			TopK:    3,
		})
		require.NoError(t, err)
		assert.True(t, answer.Found)
		assert.Equal(t, "Bail was granted [Source 1].", answer.AnswerText)
		assert.NotEmpty(t, answer.Citations)
	})

	t.Run("missing chat provider fails generation only", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RAG.SnapshotStore = config.SnapshotStoreNone
		deps := wire(t, cfg, nil)
		defer deps.Close(ctx)

		_, err := deps.Manager.AddDocument(ctx, rag.DocumentInput{
			DocumentID: "doc-1",
			OwnerID:    "user-1",
			Filename:   "bail.txt",
			Text:       "The Sessions Court granted anticipatory bail to the applicant.",
		})
		require.NoError(t, err)

		_, err = deps.Assembler.Answer(ctx, rag.AnswerRequest{
			Query:   "was bail granted?",
			OwnerID: "user-1",
			TopK:    3,
		})
		require.Error(t, err)
		assert.True(t, services.IsAnswerGenerationError(err))
	})

	t.Run("no JWT secret rejects every token", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = ""
		deps := wire(t, cfg, nil)
		defer deps.Close(ctx)

		assert.Nil(t, deps.TokenValidator)

		token, err := auth.IssueToken("some-secret", cfg.Auth.Issuer, "user-1", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		deps.AuthMiddleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("issued tokens are accepted", func(t *testing.T) {
		cfg := testConfig(t)
		deps := wire(t, cfg, nil)
		defer deps.Close(ctx)

		token, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, "user-1", time.Hour)
		require.NoError(t, err)

		claims, err := deps.TokenValidator.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("invalid chunking is rejected", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize
		logger := zap.NewNop()

		db, _, err := sqlmock.New()
		require.NoError(t, err)
		pdb := postgres.NewDBFromConn(db, logger)
		deps := &Dependencies{
			Config:           cfg,
			Logger:           logger,
			DB:               pdb,
			RepoFactory:      postgres.NewRepositoryFactoryFromDB(pdb, logger),
			Embedder:         letterEmbedder{},
			ProviderRegistry: providers.NewRegistry(),
		}
		require.NoError(t, deps.initRepositories())

		assert.Error(t, deps.initPipeline(ctx, cfg))
	})
}

func TestInitEmbedder(t *testing.T) {
	cfg := testConfig(t)
	deps := &Dependencies{Config: cfg, Logger: zap.NewNop()}

	cfg.Embedding.APIKey = ""
	assert.Error(t, deps.initEmbedder(cfg))

	cfg.Embedding.APIKey = "sk-test"
	require.NoError(t, deps.initEmbedder(cfg))
	assert.Equal(t, testDimension, deps.Embedder.Dimension())
}

func TestInitProviders(t *testing.T) {
	cfg := testConfig(t)
	deps := &Dependencies{Config: cfg, Logger: zap.NewNop()}

	cfg.Providers.OpenAI.APIKey = ""
	require.NoError(t, deps.initProviders(cfg))
	assert.Empty(t, deps.ProviderRegistry.Names())

	cfg.Providers.OpenAI.APIKey = "sk-test"
	require.NoError(t, deps.initProviders(cfg))
	assert.Equal(t, []string{"openai"}, deps.ProviderRegistry.Names())
}

func TestNewDependencies(t *testing.T) {
	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}
