package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"

	// Retrieval pipeline errors
	ErrorTypeInvalidParameter  ErrorType = "invalid_parameter"
	ErrorTypeEmbeddingService  ErrorType = "embedding_service"
	ErrorTypeDimensionMismatch ErrorType = "dimension_mismatch"
	ErrorTypeRetrieval         ErrorType = "retrieval"
	ErrorTypeAnswerGeneration  ErrorType = "answer_generation"
	ErrorTypeExtraction        ErrorType = "extraction"
	ErrorTypeNotIndexed        ErrorType = "not_indexed"
)

// User-facing messages for pipeline failures
const (
	MsgDocumentNotIndexed     = "document not indexed"
	MsgRetrievalFailed        = "could not retrieve supporting material"
	MsgNoSupportingMaterial   = "no supporting material found"
	MsgAnswerGenerationFailed = "could not generate an answer"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. These are matched with errors.Is and must not be
// decorated with WithDetail.

var (
	// Not Found Errors
	ErrDocumentNotFound = NewDomainError(ErrorTypeNotFound, "document not found", nil)

	// Validation Errors
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyQuery          = NewDomainError(ErrorTypeValidation, "query cannot be empty", nil)
	ErrUnsupportedFileType = NewDomainError(ErrorTypeValidation, "unsupported file type", nil)
	ErrFileTooLarge        = NewDomainError(ErrorTypeValidation, "file too large", nil)
	ErrInsufficientText    = NewDomainError(ErrorTypeValidation, "could not extract sufficient text from document", nil)
	ErrInvalidDocumentID   = NewDomainError(ErrorTypeValidation, "invalid document ID", nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)

	// Permission Errors
	ErrForbidden = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)

	// Conflict Errors
	ErrConcurrentUpdate = NewDomainError(ErrorTypeConflict, "concurrent update detected", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
	ErrSnapshotFailed    = NewDomainError(ErrorTypeInternal, "index snapshot failed", nil)

	// External Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "LLM provider unavailable", nil)
	ErrProviderTimeout     = NewDomainError(ErrorTypeExternal, "LLM provider timeout", nil)
	ErrProviderError       = NewDomainError(ErrorTypeExternal, "LLM provider error", nil)

	// Retrieval pipeline errors
	ErrInvalidParameter  = NewDomainError(ErrorTypeInvalidParameter, "invalid parameter", nil)
	ErrEmbeddingService  = NewDomainError(ErrorTypeEmbeddingService, "embedding service error", nil)
	ErrDimensionMismatch = NewDomainError(ErrorTypeDimensionMismatch, "vector dimension mismatch", nil)
	ErrRetrieval         = NewDomainError(ErrorTypeRetrieval, MsgRetrievalFailed, nil)
	ErrAnswerGeneration  = NewDomainError(ErrorTypeAnswerGeneration, MsgAnswerGenerationFailed, nil)
	ErrExtraction        = NewDomainError(ErrorTypeExtraction, "text extraction failed", nil)
	ErrNotIndexed        = NewDomainError(ErrorTypeNotIndexed, MsgDocumentNotIndexed, nil)
)

// Constructors for pipeline errors

// NewInvalidParameterError reports a bad chunking or search parameter
func NewInvalidParameterError(message string) *DomainError {
	return NewDomainError(ErrorTypeInvalidParameter, message, nil)
}

// NewEmbeddingServiceError wraps a failed embedding call
func NewEmbeddingServiceError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeEmbeddingService, message, err)
}

// NewDimensionMismatchError reports a vector whose length differs from the index dimension
func NewDimensionMismatchError(want, got int) *DomainError {
	return NewDomainError(ErrorTypeDimensionMismatch,
		fmt.Sprintf("vector has dimension %d, index expects %d", got, want), nil).
		WithDetail("expected", want).
		WithDetail("actual", got)
}

// NewRetrievalError wraps a failure that prevented retrieval
func NewRetrievalError(err error) *DomainError {
	return NewDomainError(ErrorTypeRetrieval, MsgRetrievalFailed, err)
}

// NewAnswerGenerationError wraps a failed generation call
func NewAnswerGenerationError(err error) *DomainError {
	return NewDomainError(ErrorTypeAnswerGeneration, MsgAnswerGenerationFailed, err)
}

// NewExtractionError reports a file whose text could not be extracted
func NewExtractionError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeExtraction, message, err)
}

// NewNotIndexedError wraps the reason a document could not be indexed
func NewNotIndexedError(err error) *DomainError {
	return NewDomainError(ErrorTypeNotIndexed, MsgDocumentNotIndexed, err)
}

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// IsInvalidParameterError checks if an error is an invalid parameter error
func IsInvalidParameterError(err error) bool { return hasType(err, ErrorTypeInvalidParameter) }

// IsEmbeddingServiceError checks if an error is an embedding service error
func IsEmbeddingServiceError(err error) bool { return hasType(err, ErrorTypeEmbeddingService) }

// IsDimensionMismatchError checks if an error is a dimension mismatch error
func IsDimensionMismatchError(err error) bool { return hasType(err, ErrorTypeDimensionMismatch) }

// IsRetrievalError checks if an error is a retrieval error
func IsRetrievalError(err error) bool { return hasType(err, ErrorTypeRetrieval) }

// IsAnswerGenerationError checks if an error is an answer generation error
func IsAnswerGenerationError(err error) bool { return hasType(err, ErrorTypeAnswerGeneration) }

// IsExtractionError checks if an error is an extraction error
func IsExtractionError(err error) bool { return hasType(err, ErrorTypeExtraction) }

// IsNotIndexedError checks if an error is a not indexed error
func IsNotIndexedError(err error) bool { return hasType(err, ErrorTypeNotIndexed) }

// HasCause reports whether any error in the chain has the given type.
// Unlike the Is*Error helpers, which look at the outermost DomainError only,
// this walks every wrapped DomainError.
func HasCause(err error, errType ErrorType) bool {
	for err != nil {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			return false
		}
		if domainErr.Type == errType {
			return true
		}
		err = domainErr.Err
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
