package pdfextract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText reads the entire content of r and extracts plain text from the
// PDF page by page, joining pages with a newline. Pages with no extractable
// text (image-only scans) contribute nothing. Returns an empty string and nil
// error when the whole document yields no text; the caller decides whether
// that is an error.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf source failed: %w", err)
	}
	if len(b) == 0 {
		return "", nil
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single malformed page should not sink the whole document.
			continue
		}
		if pageText == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// ExtractFile extracts text from a PDF on disk.
func ExtractFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf file failed: %w", err)
	}
	defer f.Close()
	return ExtractText(f)
}
