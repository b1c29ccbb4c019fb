package handlers

import (
	"errors"
	"net/http"

	"github.com/pleader-ai/pleader-backend/services"
	"github.com/pleader-ai/pleader-backend/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	message := userMessage(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err), services.IsInvalidParameterError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, message)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, message)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsExtractionError(err):
		writeErr = utils.WriteUnprocessableEntity(w, message, details)

	case services.IsEmbeddingServiceError(err),
		services.IsRetrievalError(err),
		services.IsAnswerGenerationError(err),
		services.IsExternalError(err):
		logger.Warn("upstream model service failed", zap.Error(err))
		writeErr = utils.WriteBadGateway(w, message)

	case services.IsNotIndexedError(err):
		if externalCause(err) {
			logger.Warn("document not indexed", zap.Error(err))
			writeErr = utils.WriteBadGateway(w, message)
		} else {
			logger.Error("document not indexed", zap.Error(err))
			writeErr = utils.WriteInternalServerError(w, message)
		}

	case services.IsDimensionMismatchError(err):
		// A misconfigured embedding model; nothing the caller can fix
		logger.Error("embedding dimension mismatch", zap.Error(err), zap.Any("details", details))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// userMessage returns the outermost domain message without its type prefix.
// A not-indexed error also carries the reason.
func userMessage(err error) string {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		return err.Error()
	}
	if domainErr.Type == services.ErrorTypeNotIndexed {
		var cause *services.DomainError
		if errors.As(domainErr.Err, &cause) && cause.Message != "" {
			return domainErr.Message + ": " + cause.Message
		}
		if domainErr.Err != nil {
			return domainErr.Message + ": " + domainErr.Err.Error()
		}
	}
	return domainErr.Message
}

func externalCause(err error) bool {
	return services.HasCause(err, services.ErrorTypeEmbeddingService) ||
		services.HasCause(err, services.ErrorTypeExternal) ||
		services.HasCause(err, services.ErrorTypeAnswerGeneration)
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
