package extraction

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/pleader-ai/pleader-backend/services"
)

const docxBody = "word/document.xml"

// extractDOCX reads the WordprocessingML body. Paragraphs are separated by
// blank lines; table rows become one line with cells joined by " | ".
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", services.NewExtractionError("file is not a valid DOCX document", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", services.NewExtractionError("DOCX document has no body", nil)
	}

	rc, err := body.Open()
	if err != nil {
		return "", services.NewExtractionError("failed to open DOCX body", err)
	}
	defer rc.Close()

	text, err := parseDocumentXML(rc)
	if err != nil {
		return "", services.NewExtractionError("failed to parse DOCX body", err)
	}
	return text, nil
}

func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		blocks    []string
		para      strings.Builder
		cells     []string
		cell      []string
		tableDeep int
		inText    bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDeep++
			case "tr":
				if tableDeep == 1 {
					cells = cells[:0]
				}
			case "tc":
				if tableDeep == 1 {
					cell = cell[:0]
				}
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				switch {
				case tableDeep > 0:
					if text != "" {
						cell = append(cell, text)
					}
				case text != "":
					blocks = append(blocks, para.String())
				}
				para.Reset()
			case "tc":
				if tableDeep == 1 {
					cells = append(cells, strings.Join(cell, " "))
				}
			case "tr":
				if tableDeep == 1 {
					row := strings.Join(cells, " | ")
					if strings.TrimSpace(strings.ReplaceAll(row, "|", "")) != "" {
						blocks = append(blocks, row)
					}
				}
			case "tbl":
				tableDeep--
			}
		}
	}

	return strings.Join(blocks, "\n\n"), nil
}
