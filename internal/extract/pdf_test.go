package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePDFRecords(t *testing.T) {
	text := strings.Join([]string{
		"Message Log Report",
		"Account Identifier: +5511999990000",
		"Timestamp: 01/02/2024 10:15:00",
		"Sender: 5511999990000",
		"Recipients: 5511888887777",
		"Sender Ip: 187.10.20.30 (registered)",
		"Sender Port: 40123",
		"Type: text",
		"Timestamp: 02/02/2024 11:00:00",
		"Sender: 5511777776666",
		"Recipients: 5511999990000",
		"Sender Ip: 200.1.2.3",
		"Type: image",
	}, "\n")

	records := parsePDFRecords(text)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "01/02/2024 10:15:00", first[FieldTimestamp])
	assert.Equal(t, "5511999990000", first[FieldSender])
	assert.Equal(t, "5511888887777", first[FieldRecipient])
	// Only the first whitespace-delimited token after the IP label counts.
	assert.Equal(t, "187.10.20.30", first[FieldIP])
	assert.Equal(t, "40123", first[FieldPort])
	assert.Equal(t, "text", first[FieldType])

	second := records[1]
	assert.Equal(t, "02/02/2024 11:00:00", second[FieldTimestamp])
	assert.Equal(t, "image", second[FieldType])
	_, hasPort := second[FieldPort]
	assert.False(t, hasPort)
}

func TestParsePDFRecordsLinesBeforeFirstTimestampIgnored(t *testing.T) {
	text := strings.Join([]string{
		"Sender: 5511999990000",
		"Type: text",
		"Timestamp: 01/02/2024 10:15:00",
		"Sender: 5511777776666",
	}, "\n")

	records := parsePDFRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, "5511777776666", records[0][FieldSender])
}

func TestParsePDFRecordsConsecutiveTimestamps(t *testing.T) {
	// Two timestamp lines in a row emit two records, the first carrying only
	// its timestamp.
	text := strings.Join([]string{
		"Timestamp: 01/02/2024 10:15:00",
		"Timestamp: 02/02/2024 11:00:00",
		"Sender: 5511999990000",
	}, "\n")

	records := parsePDFRecords(text)
	require.Len(t, records, 2)
	assert.Equal(t, "01/02/2024 10:15:00", records[0][FieldTimestamp])
	_, hasSender := records[0][FieldSender]
	assert.False(t, hasSender)
	assert.Equal(t, "5511999990000", records[1][FieldSender])
}

func TestParsePDFRecordsISOTimestamps(t *testing.T) {
	records := parsePDFRecords("Data: 2024-02-01 10:15:00\nTipo: texto")
	require.Len(t, records, 1)
	assert.Equal(t, "2024-02-01 10:15:00", records[0][FieldTimestamp])
	assert.Equal(t, "texto", records[0][FieldType])
}

func TestParsePDFRecordsTargetPlusStripped(t *testing.T) {
	text := strings.Join([]string{
		"Timestamp: 01/02/2024 10:15:00",
		"Alvo: +5511999990000",
	}, "\n")

	records := parsePDFRecords(text)
	require.Len(t, records, 1)
	assert.Equal(t, "5511999990000", records[0][FieldTarget])
}

func TestParsePDFRecordsEmptyText(t *testing.T) {
	assert.Empty(t, parsePDFRecords(""))
	assert.Empty(t, parsePDFRecords("report header only\nno timestamps"))
}

func TestTextFromContentStream(t *testing.T) {
	stream := []byte(strings.Join([]string{
		"BT",
		"/F1 12 Tf",
		"1 0 0 1 72 720 Td",
		"(Timestamp: 01/02/2024 10:15:00) Tj",
		"0 -14 Td",
		"(Sender: 5511999990000) Tj",
		"T*",
		"(Type: text) Tj",
		"ET",
	}, "\n"))

	text := textFromContentStream(stream)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Timestamp: 01/02/2024 10:15:00", lines[0])
	assert.Equal(t, "Sender: 5511999990000", lines[1])
	assert.Equal(t, "Type: text", lines[2])
}

func TestTextFromContentStreamTJArray(t *testing.T) {
	stream := []byte("[(Sender) -250 (: 5511999990000)] TJ")
	assert.Equal(t, "Sender: 5511999990000", textFromContentStream(stream))
}

func TestDecodePDFString(t *testing.T) {
	assert.Equal(t, "a(b)c", decodePDFString([]byte(`a\(b\)c`)))
	assert.Equal(t, "tab\there", decodePDFString([]byte(`tab\there`)))
	// Octal escape: \101 is "A".
	assert.Equal(t, "A", decodePDFString([]byte(`\101`)))
}
