package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pleader-ai/pleader-backend/middleware"
	"github.com/pleader-ai/pleader-backend/models"
	"github.com/pleader-ai/pleader-backend/services"
	"github.com/pleader-ai/pleader-backend/utils"
	"go.uber.org/zap"
)

// uploadMemoryBytes is how much of a multipart form is held in memory before
// spilling to temporary files
const uploadMemoryBytes = 8 << 20

// DocumentResponse represents a document in API responses
type DocumentResponse struct {
	ID         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	SizeBytes  int64     `json:"size_bytes"`
	TextLength int       `json:"text_length"`
	ChunkCount int       `json:"chunk_count"`
	Status     string    `json:"status"`
	Preview    string    `json:"preview,omitempty"`
	CreatedAt  string    `json:"created_at"`
	UpdatedAt  string    `json:"updated_at"`
}

// DocumentListResponse is a page of the caller's documents
type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Count     int                `json:"count"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// DocumentService defines the document operations the handler needs
type DocumentService interface {
	Upload(ctx context.Context, ownerID, filename string, content []byte) (*models.Document, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Document, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Document, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// DocumentHandler handles document upload and management requests
type DocumentHandler struct {
	service  DocumentService
	maxBytes int64
	logger   *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(service DocumentService, maxBytes int64, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		service:  service,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// HandleUpload handles POST /api/v1/documents
func (h *DocumentHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	ownerID := middleware.GetOwnerIDFromContext(ctx)
	if ownerID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := r.ParseMultipartForm(uploadMemoryBytes); err != nil {
		h.writeFormError(w, requestID, err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Warn("missing upload file",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "A file is required in the 'file' form field", nil)
		return
	}
	defer file.Close()

	if h.maxBytes > 0 && header.Size > h.maxBytes {
		h.writeTooLarge(w)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		h.writeFormError(w, requestID, err)
		return
	}

	h.logger.Debug("uploading document",
		zap.String("request_id", requestID),
		zap.String("owner_id", ownerID),
		zap.String("filename", header.Filename),
		zap.Int("size_bytes", len(content)))

	doc, err := h.service.Upload(ctx, ownerID, header.Filename, content)
	if err != nil {
		h.logger.Warn("document upload failed",
			zap.String("request_id", requestID),
			zap.String("filename", header.Filename),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("document uploaded",
		zap.String("request_id", requestID),
		zap.String("document_id", doc.ID.String()),
		zap.Int("chunks", doc.ChunkCount))

	if err := utils.WriteCreated(w, documentToResponse(doc)); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleList handles GET /api/v1/documents
func (h *DocumentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	ownerID := middleware.GetOwnerIDFromContext(ctx)
	if ownerID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid limit", nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		_ = utils.WriteBadRequest(w, "Invalid offset", nil)
		return
	}

	docs, err := h.service.List(ctx, ownerID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list documents",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	responses := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		responses[i] = documentToResponse(d)
	}

	_ = utils.WriteOK(w, DocumentListResponse{
		Documents: responses,
		Count:     len(responses),
		Limit:     limit,
		Offset:    offset,
	})
}

// HandleGet handles GET /api/v1/documents/{id}
func (h *DocumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := middleware.GetOwnerIDFromContext(ctx)
	if ownerID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, services.ErrInvalidDocumentID, h.logger)
		return
	}

	doc, err := h.service.Get(ctx, ownerID, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, documentToResponse(doc))
}

// HandleDelete handles DELETE /api/v1/documents/{id}
func (h *DocumentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	ownerID := middleware.GetOwnerIDFromContext(ctx)
	if ownerID == "" {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, services.ErrInvalidDocumentID, h.logger)
		return
	}

	if err := h.service.Delete(ctx, ownerID, id); err != nil {
		h.logger.Warn("failed to delete document",
			zap.String("request_id", requestID),
			zap.String("document_id", id.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("document deleted",
		zap.String("request_id", requestID),
		zap.String("document_id", id.String()))

	utils.WriteNoContent(w)
}

func (h *DocumentHandler) writeFormError(w http.ResponseWriter, requestID string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.writeTooLarge(w)
		return
	}
	h.logger.Warn("failed to read upload",
		zap.String("request_id", requestID),
		zap.Error(err))
	_ = utils.WriteBadRequest(w, "Invalid multipart form", nil)
}

func (h *DocumentHandler) writeTooLarge(w http.ResponseWriter) {
	_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "File too large", map[string]interface{}{
		"max_bytes": h.maxBytes,
	})
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// documentToResponse converts a document model to its response form
func documentToResponse(d *models.Document) DocumentResponse {
	return DocumentResponse{
		ID:         d.ID,
		Filename:   d.Filename,
		FileType:   d.FileType,
		SizeBytes:  d.SizeBytes,
		TextLength: d.TextLength,
		ChunkCount: d.ChunkCount,
		Status:     string(d.Status),
		Preview:    d.Preview(previewChars),
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
	}
}
