package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pleader-ai/pleader-backend/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const judgment = "The appellant was convicted under Section 302 and the appeal was filed within the limitation period."

func newTestService() *Service {
	return NewService(Config{}, zap.NewNop())
}

func TestSupportedType(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"order.pdf", true},
		{"ORDER.PDF", true},
		{"brief.docx", true},
		{"notes.txt", true},
		{"notes.text", true},
		{"README.md", true},
		{"legacy.doc", false},
		{"scan.png", false},
		{"archive.tar.gz", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, SupportedType(tt.filename))
		})
	}
}

func TestService_Validate(t *testing.T) {
	s := NewService(Config{MaxBytes: 1 << 20}, zap.NewNop())

	tests := []struct {
		name     string
		filename string
		size     int64
		check    func(error) bool
	}{
		{"legacy doc", "old.doc", 10, services.IsExtractionError},
		{"image", "scan.jpeg", 10, services.IsExtractionError},
		{"unsupported", "sheet.xlsx", 10, services.IsValidationError},
		{"too large", "big.pdf", 2 << 20, services.IsValidationError},
		{"empty", "empty.txt", 0, services.IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.filename, tt.size)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %v", err)
		})
	}

	assert.NoError(t, s.Validate("ok.pdf", 1024))
}

func TestNewService_Defaults(t *testing.T) {
	s := newTestService()
	assert.Equal(t, int64(DefaultMaxBytes), s.MaxBytes())
	assert.Equal(t, DefaultMinChars, s.config.MinChars)
}

func TestService_ExtractText(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	t.Run("utf8", func(t *testing.T) {
		text, err := s.Extract(ctx, []byte("  "+judgment+"\n"), "judgment.txt")
		require.NoError(t, err)
		assert.Equal(t, judgment, text)
	})

	t.Run("bom stripped", func(t *testing.T) {
		text, err := s.Extract(ctx, append([]byte{0xEF, 0xBB, 0xBF}, judgment...), "judgment.txt")
		require.NoError(t, err)
		assert.Equal(t, judgment, text)
	})

	t.Run("latin1 fallback", func(t *testing.T) {
		content := append([]byte("Déclaration of M. Dupont: "), []byte(judgment)...)
		content[1] = 0xE9
		content = append(content[:2], content[3:]...)
		text, err := s.Extract(ctx, content, "decl.txt")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(text, "Déclaration"), text)
	})

	t.Run("insufficient text", func(t *testing.T) {
		_, err := s.Extract(ctx, []byte("too short          \n\n\n"), "short.txt")
		assert.ErrorIs(t, err, services.ErrInsufficientText)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Extract(cctx, []byte(judgment), "judgment.txt")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(docxBody)
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s</w:body></w:document>`, body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestService_ExtractDOCX(t *testing.T) {
	s := newTestService()
	body := `<w:p><w:r><w:t>IN THE SUPREME COURT OF INDIA</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Criminal Appeal </w:t></w:r><w:r><w:t>No. 1234 of 2023</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:tbl>` +
		`<w:tr><w:tc><w:p><w:r><w:t>Party</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Counsel</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t>State</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Public Prosecutor</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p/></w:tc><w:tc><w:p/></w:tc></w:tr>` +
		`</w:tbl>` +
		`<w:p><w:r><w:t>Held</w:t><w:tab/><w:t>appeal allowed.</w:t></w:r></w:p>`

	text, err := s.Extract(context.Background(), buildDOCX(t, body), "appeal.docx")
	require.NoError(t, err)

	want := "IN THE SUPREME COURT OF INDIA\n\n" +
		"Criminal Appeal No. 1234 of 2023\n\n" +
		"Party | Counsel\n\n" +
		"State | Public Prosecutor\n\n" +
		"Held\tappeal allowed."
	assert.Equal(t, want, text)
}

func TestService_ExtractDOCXErrors(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Extract(ctx, []byte("this is not a zip archive at all"), "broken.docx")
	assert.True(t, services.IsExtractionError(err))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("word/styles.xml")
	require.NoError(t, zw.Close())
	_, err = s.Extract(ctx, buf.Bytes(), "nobody.docx")
	assert.True(t, services.IsExtractionError(err))
}
