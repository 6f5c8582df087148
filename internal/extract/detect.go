package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Result is the outcome of field extraction for one document.
type Result struct {
	Strategy Strategy
	Records  []RawFieldMap
}

// Extract parses a document and returns one RawFieldMap per candidate
// message, in document order. The strategy is selected once per document by
// structural inspection: a PDF always takes the free-text path; HTML with a
// <table> takes the table path even if nested "Message" blocks exist
// elsewhere in the markup; otherwise the nested-record path applies.
//
// A document yielding zero records is not an error here; the orchestrator
// decides whether that constitutes an import failure.
func Extract(content []byte, format Format) (*Result, error) {
	if format == FormatPDF {
		text, err := ExtractPDFText(content)
		if err != nil {
			return nil, fmt.Errorf("failed to extract PDF text: %w", err)
		}
		return &Result{
			Strategy: StrategyPDFText,
			Records:  parsePDFRecords(text),
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if doc.Find("table").Length() > 0 {
		return &Result{
			Strategy: StrategyTable,
			Records:  extractTable(doc),
		}, nil
	}

	return &Result{
		Strategy: StrategyNestedRecord,
		Records:  extractNestedRecords(doc),
	}, nil
}

// directText returns the text of a node's immediate text children, trimmed.
// Descendant elements are excluded: label nodes may contain nested formatting
// elements whose text must not leak into the label value.
func directText(s *goquery.Selection) string {
	if len(s.Nodes) == 0 {
		return ""
	}

	var b strings.Builder
	for c := s.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}

	return strings.TrimSpace(b.String())
}
