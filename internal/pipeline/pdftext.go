package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// minReadableChars is the least amount of text worth sending to the model;
// anything shorter is treated as a scanned document.
const minReadableChars = 50

// PDFTextExtractor reads the text layer of a PDF with ledongthuc/pdf.
type PDFTextExtractor struct{}

// NewPDFTextExtractor creates a PDFTextExtractor.
func NewPDFTextExtractor() *PDFTextExtractor {
	return &PDFTextExtractor{}
}

// ExtractText returns the statement text row by row. Image-only or
// undecodable documents yield an empty string and no error, so callers can
// fall back to sending the PDF itself.
func (e *PDFTextExtractor) ExtractText(ctx context.Context, pdfBytes []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("ExtractText: pdf reader panicked: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("ExtractText: open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}

	combined := strings.TrimSpace(strings.Join(pages, "\n\n"))
	if !isReadableText(combined) {
		return "", nil
	}
	return combined, nil
}

// isReadableText rejects empty output and binary garbage from custom font encodings.
func isReadableText(s string) bool {
	if len(s) < minReadableChars {
		return false
	}
	total, readable := 0, 0
	for _, r := range s {
		total++
		if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
			readable++
		}
	}
	return float64(readable)/float64(total) > 0.6
}

var _ TextExtractor = (*PDFTextExtractor)(nil)
