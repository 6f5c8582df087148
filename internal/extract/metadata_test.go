package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMetadata(t *testing.T) {
	doc := `
<html><body>
<p>Account Identifier: +5511999990000</p>
<p>Date Range: 2024-01-01 00:00:00 UTC to 2024-01-31 23:59:59 UTC</p>
</body></html>`

	meta := ExtractMetadata([]byte(doc), FormatHTML)
	assert.Equal(t, "+5511999990000", meta.TargetIdentifier)
	assert.Equal(t, "2024-01-01 00:00:00", meta.PeriodStart)
	assert.Equal(t, "2024-01-31 23:59:59", meta.PeriodEnd)
}

func TestExtractMetadataAddsPlusPrefix(t *testing.T) {
	doc := `<p>Account Identifier: 5511999990000</p>`

	meta := ExtractMetadata([]byte(doc), FormatHTML)
	assert.Equal(t, "+5511999990000", meta.TargetIdentifier)
}

func TestExtractMetadataLabelSplitAcrossElements(t *testing.T) {
	// Label and value separated by markup only match once the text nodes are
	// flattened into a single line.
	doc := `<div><span>Account Identifier:</span><span>+5511999990000</span></div>`

	meta := ExtractMetadata([]byte(doc), FormatHTML)
	assert.Equal(t, "+5511999990000", meta.TargetIdentifier)
}

func TestExtractMetadataMissingPatterns(t *testing.T) {
	meta := ExtractMetadata([]byte(`<p>no header facts here</p>`), FormatHTML)
	assert.Empty(t, meta.TargetIdentifier)
	assert.Empty(t, meta.PeriodStart)
	assert.Empty(t, meta.PeriodEnd)
}

func TestExtractMetadataPDFHasNone(t *testing.T) {
	meta := ExtractMetadata([]byte("%PDF-1.4 Account Identifier: +5511999990000"), FormatPDF)
	assert.Empty(t, meta.TargetIdentifier)
}
