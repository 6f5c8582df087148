package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	accountIdentifierRe = regexp.MustCompile(`(?i)Account\s+Identifier\s*:?\s*(\+?\d{10,15})`)
	dateRangeRe         = regexp.MustCompile(`(?i)Date\s+Range\s*:?\s*(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})\s+UTC\s+to\s+(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})`)

	// Looser fallback run against raw markup when the flattened-text pattern
	// misses: the identifier may be separated from its label by tags.
	accountIdentifierRawRe = regexp.MustCompile(`(?i)Account\s+Identifier[^<]*(\+?\d{10,15})`)
)

// ExtractMetadata pulls header-level facts (target identifier, date range)
// from a document. PDFs get no metadata extraction; for HTML any internal
// failure yields empty fields rather than an error, because a missing header
// must never abort the import.
func ExtractMetadata(content []byte, format Format) Metadata {
	var meta Metadata

	if format == FormatPDF {
		return meta
	}

	rawText := string(content)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return meta
	}

	cleanText := flattenText(doc)

	if m := accountIdentifierRe.FindStringSubmatch(cleanText); m != nil {
		meta.TargetIdentifier = m[1]
		if !strings.HasPrefix(meta.TargetIdentifier, "+") {
			meta.TargetIdentifier = "+" + meta.TargetIdentifier
		}
	}

	if m := dateRangeRe.FindStringSubmatch(cleanText); m != nil {
		meta.PeriodStart = m[1]
		meta.PeriodEnd = m[2]
	}

	if meta.TargetIdentifier == "" {
		if m := accountIdentifierRawRe.FindStringSubmatch(rawText); m != nil {
			meta.TargetIdentifier = m[1]
		}
	}

	return meta
}

// flattenText strips markup, joining the trimmed text nodes with single
// spaces so label/value pairs split across elements still match as one line.
func flattenText(doc *goquery.Document) string {
	var parts []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range doc.Nodes {
		walk(n)
	}

	return strings.Join(parts, " ")
}
