package resume

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrMalformed 表示上传内容不是可解析的 PDF。
	ErrMalformed = errors.New("resume is not a readable PDF document")
	// ErrNoText 表示 PDF 中没有可提取的文字（例如扫描件）。
	ErrNoText = errors.New("could not extract text from the PDF")
)

// Extractor turns an uploaded résumé into plain text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// PDFExtractor reads the text layer of every page.
type PDFExtractor struct{}

// NewPDFExtractor returns the default extractor.
func NewPDFExtractor() PDFExtractor {
	return PDFExtractor{}
}

// Extract rebuilds the lines of every page from glyph positions, joins
// lines and pages with newlines and trims the result. Pages without a text
// layer contribute an empty line.
func (PDFExtractor) Extract(data []byte) (text string, err error) {
	// the parser panics on some truncated inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.Join(pageLines(page.Content().Text), "\n"))
	}

	text = strings.TrimSpace(strings.Join(pages, "\n"))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
