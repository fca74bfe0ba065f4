// Package document handles PDF text extraction and chunking for the
// retrieval pipeline.
package document

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page holds the extracted text of a single PDF page.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Extractor reads text out of PDF files page by page.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

var spaceRun = regexp.MustCompile(`[ \t]+`)

// Extract returns the plain text of every page in the PDF at path.
// Pages that yield no text (scanned images, blank pages) are skipped.
// An entirely empty document is an error: the retrieval pipeline has
// nothing to index.
func (e *Extractor) Extract(path string) ([]Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var pages []Page
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the whole book.
			continue
		}
		text = normalize(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no text extracted from %s", path)
	}
	return pages, nil
}

// JoinPages concatenates page texts into a single string and returns the
// starting offset of each page within it. The offsets let chunking map a
// chunk back to the pages it came from.
func JoinPages(pages []Page) (string, []PageOffset) {
	var b strings.Builder
	offsets := make([]PageOffset, 0, len(pages))
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		offsets = append(offsets, PageOffset{Number: p.Number, Start: b.Len()})
		b.WriteString(p.Text)
	}
	return b.String(), offsets
}

// PageOffset records where a page's text begins in the joined document.
type PageOffset struct {
	Number int
	Start  int
}

// PageAt returns the page number containing the byte offset off.
func PageAt(offsets []PageOffset, off int) int {
	page := 0
	for _, po := range offsets {
		if po.Start > off {
			break
		}
		page = po.Number
	}
	return page
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
