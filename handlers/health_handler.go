package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pleader-ai/pleader-backend/services/rag"
	"github.com/pleader-ai/pleader-backend/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// IndexStatter reports vector index contents
type IndexStatter interface {
	Stats(ctx context.Context) (rag.IndexStats, error)
}

// DatabaseChecker verifies that the document store answers queries
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     DatabaseChecker
	index  IndexStatter
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and index may be nil.
func NewHealthHandler(db DatabaseChecker, index IndexStatter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		index:  index,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that the database and the index answer
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	if h.index != nil {
		if _, err := h.index.Stats(ctx); err != nil {
			h.logger.Warn("index health check failed", zap.Error(err))
			checks["index"] = "unhealthy"
			allHealthy = false
		} else {
			checks["index"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil // No database configured
	}
	return h.db.HealthCheck(ctx)
}

// StatusInfo describes the running service
type StatusInfo struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Environment  string          `json:"environment"`
	IndexBackend string          `json:"index_backend"`
	Providers    map[string]bool `json:"providers,omitempty"`
}

// ProviderAvailability reports which generation providers answer
type ProviderAvailability interface {
	Availability(ctx context.Context) map[string]bool
}

const (
	availabilityTTL     = 30 * time.Second
	availabilityTimeout = 3 * time.Second
)

// StatusHandler returns a handler for GET /api/v1/status. When providers is
// not nil the response reports each provider's availability, refreshed at
// most every 30 seconds.
func StatusHandler(info StatusInfo, providers ProviderAvailability) http.HandlerFunc {
	var (
		mu        sync.Mutex
		cached    map[string]bool
		checkedAt time.Time
	)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := info
		if providers != nil {
			mu.Lock()
			if cached == nil || time.Since(checkedAt) > availabilityTTL {
				ctx, cancel := context.WithTimeout(r.Context(), availabilityTimeout)
				cached = providers.Availability(ctx)
				cancel()
				checkedAt = time.Now()
			}
			resp.Providers = cached
			mu.Unlock()
		}
		_ = utils.WriteOK(w, resp)
	}
}
