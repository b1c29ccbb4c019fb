package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Index backends
const (
	IndexBackendMemory   = "memory"
	IndexBackendPgvector = "pgvector"
)

// Snapshot stores for the in-memory index
const (
	SnapshotStorePostgres = "postgres"
	SnapshotStoreSQLite   = "sqlite"
	SnapshotStoreNone     = "none"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Providers     ProvidersConfig
	Embedding     EmbeddingConfig
	RAG           RAGConfig
	Upload        UploadConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds JWT validation configuration
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	// TokenTTL is the lifetime of tokens minted by the operator CLI
	TokenTTL time.Duration
	Leeway   time.Duration
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
}

// OpenAIConfig holds the chat completion provider configuration used for
// answers and reranking
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Dimension   int
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
}

// RAGConfig holds retrieval and indexing configuration
type RAGConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	DefaultTopK     int
	MaxTopK         int
	RerankDefault   bool
	RerankOverfetch int

	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
	RerankTimeout   time.Duration
	SaveTimeout     time.Duration

	// MaxContextTokens caps passage text in the answer prompt
	MaxContextTokens int

	IndexBackend  string // memory or pgvector
	SnapshotStore string // postgres, sqlite or none
	SnapshotName  string
	SQLitePath    string
	PromptsFile   string
}

// UploadConfig holds document upload limits
type UploadConfig struct {
	MaxBytes int64
	MinChars int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := Load()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads the configuration from the environment without validating it
func Load() *Config {
	openAIKey := getEnv("OPENAI_API_KEY", "")
	openAIBaseURL := getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 110*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", DefaultAllowedOrigins),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "pleader"),
			TokenTTL:  getEnvAsDuration("JWT_TOKEN_TTL", 24*time.Hour),
			Leeway:    getEnvAsDuration("JWT_LEEWAY", 30*time.Second),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:      openAIKey,
				BaseURL:     openAIBaseURL,
				Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
				Temperature: getEnvAsFloat("OPENAI_TEMPERATURE", 0.2),
				Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			},
		},
		Embedding: EmbeddingConfig{
			APIKey:      getEnv("EMBEDDING_API_KEY", openAIKey),
			BaseURL:     getEnv("EMBEDDING_BASE_URL", openAIBaseURL),
			Model:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension:   getEnvAsInt("EMBEDDING_DIMENSION", 1536),
			BatchSize:   getEnvAsInt("EMBEDDING_BATCH_SIZE", 64),
			Concurrency: getEnvAsInt("EMBEDDING_CONCURRENCY", 4),
			Timeout:     getEnvAsDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		RAG: RAGConfig{
			ChunkSize:        getEnvAsInt("RAG_CHUNK_SIZE", 500),
			ChunkOverlap:     getEnvAsInt("RAG_CHUNK_OVERLAP", 100),
			DefaultTopK:      getEnvAsInt("RAG_DEFAULT_TOP_K", 3),
			MaxTopK:          getEnvAsInt("RAG_MAX_TOP_K", 20),
			RerankDefault:    getEnvAsBool("RAG_RERANK_DEFAULT", true),
			RerankOverfetch:  getEnvAsInt("RAG_RERANK_OVERFETCH", 2),
			EmbedTimeout:     getEnvAsDuration("RAG_EMBED_TIMEOUT", 2*time.Minute),
			GenerateTimeout:  getEnvAsDuration("RAG_GENERATE_TIMEOUT", 60*time.Second),
			RerankTimeout:    getEnvAsDuration("RAG_RERANK_TIMEOUT", 20*time.Second),
			SaveTimeout:      getEnvAsDuration("RAG_SAVE_TIMEOUT", 30*time.Second),
			MaxContextTokens: getEnvAsInt("RAG_MAX_CONTEXT_TOKENS", 3000),
			IndexBackend:     strings.ToLower(getEnv("RAG_INDEX_BACKEND", IndexBackendMemory)),
			SnapshotStore:    strings.ToLower(getEnv("RAG_SNAPSHOT_STORE", SnapshotStorePostgres)),
			SnapshotName:     getEnv("RAG_SNAPSHOT_NAME", "default"),
			SQLitePath:       getEnv("RAG_SQLITE_PATH", "data/rag_index.db"),
			PromptsFile:      getEnv("RAG_PROMPTS_FILE", ""),
		},
		Upload: UploadConfig{
			MaxBytes: int64(getEnvAsInt("UPLOAD_MAX_BYTES", 30<<20)),
			MinChars: getEnvAsInt("UPLOAD_MIN_CHARS", 50),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// DefaultAllowedOrigins is the CORS allow list when CORS_ALLOWED_ORIGINS is unset
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Auth.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT secret is required in production")
		}
	} else if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters in production")
	}

	for _, origin := range c.Server.AllowedOrigins {
		if strings.Contains(origin, "*") {
			return fmt.Errorf("CORS origin %q must be an exact origin, wildcards are not allowed", origin)
		}
	}

	if c.IsProduction() && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required in production")
	}

	if err := c.RAG.Validate(); err != nil {
		return err
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.Concurrency <= 0 {
		return fmt.Errorf("embedding batch size and concurrency must be positive")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// Validate checks the retrieval settings
func (r *RAGConfig) Validate() error {
	if r.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("chunk overlap must be between 0 and chunk size - 1")
	}
	if r.MaxTopK <= 0 {
		return fmt.Errorf("max top_k must be positive")
	}
	if r.DefaultTopK <= 0 || r.DefaultTopK > r.MaxTopK {
		return fmt.Errorf("default top_k must be between 1 and %d", r.MaxTopK)
	}
	if r.RerankOverfetch < 1 {
		return fmt.Errorf("rerank overfetch must be at least 1")
	}
	switch r.IndexBackend {
	case IndexBackendMemory, IndexBackendPgvector:
	default:
		return fmt.Errorf("unknown index backend %q", r.IndexBackend)
	}
	switch r.SnapshotStore {
	case SnapshotStorePostgres, SnapshotStoreNone:
	case SnapshotStoreSQLite:
		if r.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite snapshot store")
		}
	default:
		return fmt.Errorf("unknown snapshot store %q", r.SnapshotStore)
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "pleader"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
