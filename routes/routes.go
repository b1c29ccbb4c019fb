package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pleader-ai/pleader-backend/app"
	"github.com/pleader-ai/pleader-backend/config"
	"github.com/pleader-ai/pleader-backend/handlers"
	"github.com/pleader-ai/pleader-backend/internal/observability"
	"github.com/pleader-ai/pleader-backend/utils"
)

// ServiceName is reported by the status endpoint
const ServiceName = "pleader-api"

// Version is set at build time with -ldflags "-X .../routes.Version=..."
var Version = "dev"

// defaultRequestTimeout applies when the server config leaves it unset
const defaultRequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = config.DefaultAllowedOrigins
	}

	// CORS middleware. Tokens travel in the Authorization header only, so
	// browsers never need to send credentials cross-origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		var availability handlers.ProviderAvailability
		if deps.ProviderRegistry != nil {
			availability = deps.ProviderRegistry
		}
		r.Get("/status", handlers.StatusHandler(handlers.StatusInfo{
			Name:         ServiceName,
			Version:      Version,
			Environment:  cfg.Environment,
			IndexBackend: cfg.RAG.IndexBackend,
		}, availability))

		// Document management
		r.Route("/documents", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.With(deps.BodyLimit.Limit).Post("/", deps.DocumentHandler.HandleUpload)
			r.Get("/", deps.DocumentHandler.HandleList)
			r.Get("/{id}", deps.DocumentHandler.HandleGet)
			r.Delete("/{id}", deps.DocumentHandler.HandleDelete)
		})

		// Question answering
		r.Route("/rag", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.With(middleware.AllowContentType("application/json")).Post("/query", deps.RAGHandler.HandleQuery)
			r.Get("/stats", deps.RAGHandler.HandleStats)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found", nil)
	})

	return r
}
