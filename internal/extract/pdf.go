package extract

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ExtractPDFText extracts text from every page of a PDF, pages joined by
// newlines. Text-positioning operators become line breaks so the report's
// line structure survives into the state machine.
func ExtractPDFText(content []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var b strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := extractPageText(ctx, pageNr)
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(pageText)
	}

	return b.String(), nil
}

func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromContentStream(data)
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^)\\])*)\)`)

// textFromContentStream walks the content stream's text-showing operators.
// Tj/TJ append to the current line; ', T* and Td/TD start a new one.
func textFromContentStream(data []byte) string {
	var b strings.Builder

	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				b.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			newline()
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				b.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")),
			bytes.Equal(line, []byte("T*")):
			newline()
		}
	}

	return b.String()
}

// decodePDFString handles basic PDF escape sequences, including octal escapes.
func decodePDFString(raw []byte) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			b.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\', '(', ')':
			b.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for j := 0; j < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; j++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				b.WriteByte(byte(val))
			} else {
				b.WriteByte(raw[i])
			}
		}
	}
	return b.String()
}

var (
	// A timestamp line opens a new record. The label is optional: reports
	// carry "Timestamp: ...", "Data: ..." or a bare date.
	pdfDateRe = regexp.MustCompile(`(?i)(?:Timestamp|Data|Date|Hora)?[:\s]*(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2}|\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})`)

	pdfIPLabelRe     = regexp.MustCompile(`(?i)(Sender Ip|IP|IP Remetente)[:\s]`)
	pdfIPSplitRe     = regexp.MustCompile(`(?i)(?:Sender Ip|IP|IP Remetente)[:\s]+`)
	pdfPortLabelRe   = regexp.MustCompile(`(?i)(Sender Port|Porta)[:\s]`)
	pdfPortSplitRe   = regexp.MustCompile(`(?i)(?:Sender Port|Porta)[:\s]+`)
	pdfSenderLabelRe = regexp.MustCompile(`(?i)(Sender|From|De|Remetente)[:\s]`)
	pdfSenderSplitRe = regexp.MustCompile(`(?i)(?:Sender|From|De|Remetente)[:\s]+`)
	pdfIPOrPortRe    = regexp.MustCompile(`(?i)(Ip|Port)`)
	pdfRecipLabelRe  = regexp.MustCompile(`(?i)(Recipients|To|Para|Destinat[áa]rio)[:\s]`)
	pdfRecipSplitRe  = regexp.MustCompile(`(?i)(?:Recipients|To|Para|Destinat[áa]rio)[:\s]+`)
	pdfTypeLabelRe   = regexp.MustCompile(`(?i)(Type|Tipo)[:\s]`)
	pdfTypeSplitRe   = regexp.MustCompile(`(?i)(?:Type|Tipo)[:\s]+`)
	pdfTargetLabelRe = regexp.MustCompile(`(?i)(Account Identifier|Alvo|Conta)[:\s]`)
	pdfTargetSplitRe = regexp.MustCompile(`(?i)(?:Account Identifier|Alvo|Conta)[:\s]+`)
)

// parsePDFRecords runs a forward-only state machine over the extracted text.
// A timestamp line emits any open record and starts a new one; within an open
// record, label lines assign fields, last assignment winning. A record is
// emitted only if it has a timestamp.
func parsePDFRecords(text string) []RawFieldMap {
	var records []RawFieldMap
	var current RawFieldMap

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := pdfDateRe.FindStringSubmatch(line); m != nil {
			if _, open := current[FieldTimestamp]; open {
				records = append(records, current)
				current = nil
			}
			if current == nil {
				current = RawFieldMap{}
			}
			current[FieldTimestamp] = m[1]
			// Fall through: the rest of the line may carry more fields.
		}

		if current == nil {
			continue
		}

		switch {
		case pdfIPLabelRe.MatchString(line):
			if rest := splitAfterLabel(pdfIPSplitRe, line); rest != "" {
				// First whitespace-delimited token only.
				current[FieldIP] = strings.Fields(rest)[0]
			}
		case pdfPortLabelRe.MatchString(line):
			if rest := splitAfterLabel(pdfPortSplitRe, line); rest != "" {
				current[FieldPort] = rest
			}
		case pdfSenderLabelRe.MatchString(line) && !pdfIPOrPortRe.MatchString(line):
			if rest := splitAfterLabel(pdfSenderSplitRe, line); rest != "" {
				current[FieldSender] = rest
			}
		case pdfRecipLabelRe.MatchString(line):
			if rest := splitAfterLabel(pdfRecipSplitRe, line); rest != "" {
				current[FieldRecipient] = rest
			}
		case pdfTypeLabelRe.MatchString(line):
			if rest := splitAfterLabel(pdfTypeSplitRe, line); rest != "" {
				current[FieldType] = rest
			}
		case pdfTargetLabelRe.MatchString(line):
			if rest := splitAfterLabel(pdfTargetSplitRe, line); rest != "" {
				current[FieldTarget] = strings.ReplaceAll(rest, "+", "")
			}
		}
	}

	if _, open := current[FieldTimestamp]; open {
		records = append(records, current)
	}

	return records
}

// splitAfterLabel returns the trimmed remainder of the line after the first
// label match, or "" when the label ends the line.
func splitAfterLabel(re *regexp.Regexp, line string) string {
	parts := re.Split(line, 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
