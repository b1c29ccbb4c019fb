package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pleader-ai/pleader-backend/services"
	"go.uber.org/zap"
)

// extractPDF validates the file with pdfcpu, decrypting it first when it is
// protected by an empty user password, and then decodes each page's text
// through its fonts' encodings and ToUnicode maps. Page texts are joined with
// "[Page N]" headers. Pages that fail to decode are skipped.
func extractPDF(content []byte, logger *zap.Logger) (text string, err error) {
	// both readers panic on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			err = services.NewExtractionError("failed to read PDF", fmt.Errorf("%v", r))
		}
	}()

	plain, err := validatePDF(content)
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(bytes.NewReader(plain), int64(len(plain)))
	if err != nil {
		return "", services.NewExtractionError("failed to read PDF", err)
	}

	pages := reader.NumPage()
	parts := make([]string, 0, pages)
	for num := 1; num <= pages; num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		pageText, err := pageText(page)
		if err != nil {
			logger.Warn("failed to extract PDF page", zap.Int("page", num), zap.Error(err))
			continue
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			parts = append(parts, fmt.Sprintf("[Page %d]\n%s", num, pageText))
		}
	}

	logger.Debug("extracted PDF pages",
		zap.Int("pages", pages),
		zap.Int("pages_with_text", len(parts)))
	return strings.Join(parts, "\n\n"), nil
}

// validatePDF checks the document structure and returns the bytes text
// extraction should read. Encrypted files come back decrypted.
func validatePDF(content []byte) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(content), conf)
	if err != nil {
		return nil, services.NewExtractionError("failed to read PDF", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, services.NewExtractionError("invalid PDF", err)
	}
	if ctx.Encrypt == nil {
		return content, nil
	}

	conf = model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(content), &out, conf); err != nil {
		return nil, services.NewExtractionError("failed to decrypt PDF", err)
	}
	return out.Bytes(), nil
}

// pageText decodes one page with every font the page declares.
func pageText(page pdf.Page) (string, error) {
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		font := page.Font(name)
		fonts[name] = &font
	}
	return page.GetPlainText(fonts)
}
