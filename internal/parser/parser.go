package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"legal-rag/internal/models"
)

const pdfExt = ".pdf"

// IsPDF reports whether filename carries the only supported extension.
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), pdfExt)
}

// LoadPDF extracts the plain text of every page of the PDF at filePath.
func LoadPDF(filePath string) ([]models.Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ParsePDF(f, stat.Size())
}

// ParsePDF reads pages from an in-memory or on-disk PDF. Pages are numbered from 1.
func ParsePDF(r io.ReaderAt, size int64) (pages []models.Page, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("failed to read pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages = make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text of page %d: %w", i, err)
		}
		pages = append(pages, models.Page{Number: i, Text: pageText})
	}
	return pages, nil
}
