// Package extract pulls page-attributed plain text out of uploaded papers.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/liliang-cn/paperchat/internal/domain"
)

// ErrNotPDF is returned for input without the PDF magic header
var ErrNotPDF = fmt.Errorf("%w: not a PDF document", domain.ErrInvalidRequest)

// Page is the text of one 1-indexed page
type Page struct {
	Number int
	Text   string
}

// Document is the extraction result for one file
type Document struct {
	Pages     []Page
	FullText  string
	PageCount int
}

// PDFExtractor extracts text from PDF bytes using ledongthuc/pdf
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract parses data and returns per-page text. Pages without a content
// stream are kept with empty text so page numbers stay aligned.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (doc *Document, err error) {
	if !IsPDFData(data) {
		return nil, ErrNotPDF
	}

	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("%w: document has no pages", domain.ErrNoExtractableText)
	}

	doc = &Document{PageCount: total, Pages: make([]Page, 0, total)}
	texts := make([]string, 0, total)
	extracted := 0

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			raw, err := page.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("failed to read page %d: %w", i, err)
			}
			text = normalizeText(raw)
		}

		if strings.TrimSpace(text) != "" {
			extracted++
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
		texts = append(texts, text)
	}

	if extracted == 0 {
		return nil, fmt.Errorf("%w: %d pages without text", domain.ErrNoExtractableText, total)
	}

	doc.FullText = strings.Join(texts, "\n\n")
	return doc, nil
}

// IsPDFData checks the PDF magic header
func IsPDFData(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF"))
}

// IsPDF checks if the provided filename has a .pdf extension (case-insensitive)
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}
