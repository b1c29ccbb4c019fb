package app

import (
	"context"
	"fmt"

	"github.com/pleader-ai/pleader-backend/auth"
	"github.com/pleader-ai/pleader-backend/config"
	"github.com/pleader-ai/pleader-backend/handlers"
	"github.com/pleader-ai/pleader-backend/middleware"
	"github.com/pleader-ai/pleader-backend/repositories"
	"github.com/pleader-ai/pleader-backend/repositories/postgres"
	"github.com/pleader-ai/pleader-backend/repositories/sqlite"
	"github.com/pleader-ai/pleader-backend/services/documents"
	"github.com/pleader-ai/pleader-backend/services/extraction"
	"github.com/pleader-ai/pleader-backend/services/providers"
	"github.com/pleader-ai/pleader-backend/services/providers/openai"
	"github.com/pleader-ai/pleader-backend/services/rag"
	"github.com/pleader-ai/pleader-backend/services/rag/pgvector"
	"go.uber.org/zap"
)

// generationProvider is the registry name of the provider used for answers
// and reranking
const generationProvider = "openai"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Documents repositories.DocumentRepository
	Snapshots repositories.SnapshotRepository
	TxManager repositories.TransactionManager

	// Providers
	ProviderRegistry *providers.Registry
	Embedder         rag.Embedder

	// Retrieval pipeline
	Index     rag.Index
	Manager   *rag.Manager
	Retriever *rag.Retriever
	Assembler *rag.Assembler

	// Services
	Extractor       *extraction.Service
	DocumentService *documents.Service

	// Auth and request middleware
	TokenValidator *auth.JWTValidator
	AuthMiddleware *middleware.AuthMiddleware
	BodyLimit      *middleware.BodyLimitMiddleware

	// Handlers
	HealthHandler   *handlers.HealthHandler
	DocumentHandler *handlers.DocumentHandler
	RAGHandler      *handlers.RAGHandler

	closers []func() error
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initEmbedder(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	if err := deps.initPipeline(ctx, cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize retrieval pipeline: %w", err)
	}

	deps.initServices(cfg)

	if err := deps.initAuth(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.closers = append(d.closers, factory.Close)

	// Test the connection
	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() error {
	repos := d.RepoFactory.NewRepositories()

	d.Documents = repos.Documents
	d.Snapshots = repos.Snapshots
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

// initProviders registers the chat completion provider
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()

	if cfg.Providers.OpenAI.APIKey != "" {
		adapter := openai.NewOpenAIAdapter(providers.ProviderConfig{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Timeout: cfg.Providers.OpenAI.Timeout,
		})
		if err := registry.Register(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered OpenAI provider", zap.String("model", cfg.Providers.OpenAI.Model))
	} else {
		d.Logger.Warn("no LLM providers configured, queries will fail")
	}

	d.ProviderRegistry = registry
	return nil
}

// initEmbedder creates the embedding client
func (d *Dependencies) initEmbedder(cfg *config.Config) error {
	embedder, err := openai.NewEmbedder(openai.EmbedderConfig{
		Provider: providers.ProviderConfig{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Timeout: cfg.Embedding.Timeout,
		},
		Model:       cfg.Embedding.Model,
		Dimension:   cfg.Embedding.Dimension,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.Embedder = embedder
	d.Logger.Info("embedder initialized",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimension", embedder.Dimension()))
	return nil
}

// initPipeline builds the index, the lifecycle manager and the query path.
// It expects Embedder and ProviderRegistry to be set.
func (d *Dependencies) initPipeline(ctx context.Context, cfg *config.Config) error {
	dimension := d.Embedder.Dimension()

	var snapshots repositories.SnapshotRepository
	switch cfg.RAG.IndexBackend {
	case config.IndexBackendPgvector:
		idx, err := pgvector.Open(ctx, cfg.Database.DSN(), dimension, d.Logger)
		if err != nil {
			return err
		}
		d.Index = idx
		d.closers = append(d.closers, func() error { idx.Close(); return nil })
	default:
		idx, err := rag.NewMemoryIndex(dimension)
		if err != nil {
			return err
		}
		d.Index = idx

		store, err := d.snapshotStore(cfg)
		if err != nil {
			return err
		}
		snapshots = store
	}

	manager, err := rag.NewManager(d.Index, d.Embedder, snapshots, rag.ManagerConfig{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		EmbedTimeout: cfg.RAG.EmbedTimeout,
		SaveTimeout:  cfg.RAG.SaveTimeout,
		SnapshotName: cfg.RAG.SnapshotName,
	}, d.Logger)
	if err != nil {
		return err
	}
	if err := manager.Load(ctx); err != nil {
		return err
	}
	d.Manager = manager

	prompts := rag.DefaultPrompts()
	if cfg.RAG.PromptsFile != "" {
		prompts, err = rag.LoadPrompts(cfg.RAG.PromptsFile)
		if err != nil {
			return err
		}
	}

	provider, err := d.ProviderRegistry.Get(generationProvider)
	if err != nil {
		d.Logger.Warn("generation provider not registered",
			zap.String("provider", generationProvider),
			zap.Strings("registered", d.ProviderRegistry.Names()))
		provider = unconfiguredProvider{}
	}
	generator := rag.NewProviderGenerator(provider, prompts, rag.GeneratorConfig{
		Model:       cfg.Providers.OpenAI.Model,
		MaxTokens:   cfg.Providers.OpenAI.MaxTokens,
		Temperature: cfg.Providers.OpenAI.Temperature,
	}, d.Logger)

	reranker := rag.NewReranker(generator, prompts, cfg.RAG.RerankTimeout, d.Logger)
	d.Retriever = rag.NewRetriever(d.Embedder, d.Index, reranker, rag.RetrieverConfig{
		RerankOverfetch: cfg.RAG.RerankOverfetch,
		EmbedTimeout:    cfg.RAG.EmbedTimeout,
	}, d.Logger)
	d.Assembler = rag.NewAssembler(d.Retriever, generator, prompts,
		rag.NewTokenCounter(cfg.Providers.OpenAI.Model, d.Logger),
		rag.AssemblerConfig{
			GenerateTimeout:  cfg.RAG.GenerateTimeout,
			MaxContextTokens: cfg.RAG.MaxContextTokens,
		}, d.Logger)

	d.Logger.Info("retrieval pipeline initialized",
		zap.String("index_backend", cfg.RAG.IndexBackend),
		zap.String("snapshot_store", cfg.RAG.SnapshotStore))
	return nil
}

// snapshotStore picks where the in-memory index is persisted
func (d *Dependencies) snapshotStore(cfg *config.Config) (repositories.SnapshotRepository, error) {
	switch cfg.RAG.SnapshotStore {
	case config.SnapshotStoreSQLite:
		store, err := sqlite.NewSnapshotStore(cfg.RAG.SQLitePath, d.Logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, store.Close)
		return store, nil
	case config.SnapshotStoreNone:
		d.Logger.Warn("index snapshots disabled, the index will be empty after a restart")
		return nil, nil
	default:
		return d.Snapshots, nil
	}
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Extractor = extraction.NewService(extraction.Config{
		MaxBytes: cfg.Upload.MaxBytes,
		MinChars: cfg.Upload.MinChars,
	}, d.Logger)
	d.DocumentService = documents.NewService(d.Documents, d.TxManager, d.Extractor, d.Manager, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		d.Logger.Warn("JWT secret not configured, protected routes will reject every token")
		d.AuthMiddleware = middleware.NewAuthMiddleware(rejectAllValidator{}, d.Logger)
	} else {
		validator, err := auth.NewJWTValidator(auth.JWTConfig{
			Secret: secret,
			Issuer: cfg.Auth.Issuer,
			Leeway: cfg.Auth.Leeway,
		})
		if err != nil {
			return err
		}
		d.TokenValidator = validator
		d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	}

	d.BodyLimit = middleware.NewBodyLimitMiddleware(cfg.Upload.MaxBytes, d.Logger)
	return nil
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	var db handlers.DatabaseChecker
	if d.DB != nil {
		db = d.DB
	}
	d.HealthHandler = handlers.NewHealthHandler(db, d.Manager, d.Logger)
	d.DocumentHandler = handlers.NewDocumentHandler(d.DocumentService, cfg.Upload.MaxBytes, d.Logger)
	d.RAGHandler = handlers.NewRAGHandler(d.Assembler, d.Manager, handlers.RAGHandlerConfig{
		DefaultTopK:   cfg.RAG.DefaultTopK,
		DefaultRerank: cfg.RAG.RerankDefault,
		IndexBackend:  cfg.RAG.IndexBackend,
		Dimension:     d.Index.Dimension(),
	}, d.Logger)
}

// Flush persists any index changes whose write-through save failed
func (d *Dependencies) Flush(ctx context.Context) error {
	if d.Manager == nil {
		return nil
	}
	return d.Manager.Flush(ctx)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if err := d.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush index snapshot: %w", err))
	}

	// Close in reverse order of creation
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func (d *Dependencies) closeQuietly(ctx context.Context) {
	if err := d.Close(ctx); err != nil {
		d.Logger.Warn("cleanup after failed initialization", zap.Error(err))
	}
}

// rejectAllValidator rejects all tokens (used when no JWT secret is set)
type rejectAllValidator struct{}

func (rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// unconfiguredProvider stands in for a missing chat provider so that the
// rest of the API stays up. Every generation fails.
type unconfiguredProvider struct{}

func (unconfiguredProvider) Name() string { return "unconfigured" }

func (unconfiguredProvider) ChatCompletion(context.Context, *providers.ChatRequest) (*providers.ChatResponse, error) {
	return nil, providers.ErrProviderNotFound
}

func (unconfiguredProvider) IsAvailable(context.Context) bool { return false }
