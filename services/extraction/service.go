// Package extraction turns uploaded legal documents (PDF, DOCX, plain text)
// into the plain text the retrieval index is built from.
package extraction

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pleader-ai/pleader-backend/services"
	"go.uber.org/zap"
)

// Defaults for upload validation
const (
	DefaultMaxBytes = 30 << 20
	DefaultMinChars = 50
)

// Supported lists the accepted file extensions
var Supported = []string{"pdf", "docx", "txt", "text", "md"}

// Config bounds what the extractor accepts
type Config struct {
	MaxBytes int64
	// MinChars is the least number of non-space characters a document must yield
	MinChars int
}

// Service extracts text from uploaded files
type Service struct {
	config Config
	logger *zap.Logger
}

// NewService creates an extraction service
func NewService(config Config, logger *zap.Logger) *Service {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.MinChars <= 0 {
		config.MinChars = DefaultMinChars
	}
	return &Service{config: config, logger: logger}
}

// MaxBytes returns the upload size limit
func (s *Service) MaxBytes() int64 {
	return s.config.MaxBytes
}

// Extension returns the lowercase extension of filename without the dot
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// SupportedType reports whether filename has an extension the service can extract
func SupportedType(filename string) bool {
	ext := Extension(filename)
	for _, s := range Supported {
		if ext == s {
			return true
		}
	}
	return false
}

// Validate checks the file type and size before any parsing
func (s *Service) Validate(filename string, size int64) error {
	ext := Extension(filename)
	switch ext {
	case "doc":
		return services.NewExtractionError("legacy .doc format is not supported, please convert to .docx", nil)
	case "jpg", "jpeg", "png", "bmp", "tiff":
		return services.NewExtractionError("text recognition for images is not available, please upload a PDF, DOCX or TXT file", nil)
	}
	if !SupportedType(filename) {
		return services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("unsupported file type %q, supported types: PDF, DOCX, TXT", ext), nil).
			WithDetail("extension", ext)
	}
	if size > s.config.MaxBytes {
		return services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("file exceeds the %d MB limit", s.config.MaxBytes>>20), nil).
			WithDetail("size", size)
	}
	if size == 0 {
		return services.NewDomainError(services.ErrorTypeValidation, "file is empty", nil)
	}
	return nil
}

// Extract validates content and returns its text
func (s *Service) Extract(ctx context.Context, content []byte, filename string) (string, error) {
	if err := s.Validate(filename, int64(len(content))); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch Extension(filename) {
	case "pdf":
		text, err = extractPDF(content, s.logger)
	case "docx":
		text, err = extractDOCX(content)
	default:
		text = extractText(content)
	}
	if err != nil {
		s.logger.Warn("text extraction failed",
			zap.String("filename", filename),
			zap.Error(err))
		return "", err
	}

	text = strings.TrimSpace(text)
	if countLetters(text) < s.config.MinChars {
		return "", services.ErrInsufficientText
	}

	s.logger.Info("extracted document text",
		zap.String("filename", filename),
		zap.Int("bytes", len(content)),
		zap.Int("characters", len([]rune(text))))
	return text, nil
}

func countLetters(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
