package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedDoc = `
<html><body>
<div class="t o">
  <div class="t i">Account Identifier</div>
  <div class="m">+5511999990000</div>
</div>
<div class="t o">
  <div class="t i">Message</div>
  <div class="m"><div>
    <div class="t o"><div class="t i">Timestamp:</div><div class="m">2024-02-01 10:15:00 UTC</div></div>
    <div class="t o"><div class="t i">Sender</div><div class="m">5511999990000</div></div>
    <div class="t o"><div class="t i">Recipients</div><div class="m">5511888887777</div></div>
    <div class="t o"><div class="t i">Sender Ip</div><div class="m">187.10.20.30</div></div>
    <div class="t o"><div class="t i">Sender Port</div><div class="m">40123</div></div>
    <div class="t o"><div class="t i">Type</div><div class="m">text</div></div>
  </div></div>
</div>
<div class="t o">
  <div class="t i">Message</div>
  <div class="m"><div>
    <div class="t o"><div class="t i">Timestamp:</div><div class="m">2024-02-02 11:00:00 UTC</div></div>
    <div class="t o"><div class="t i">Sender</div><div class="m">5511777776666</div></div>
    <div class="t o"><div class="t i">Recipients</div><div class="m">5511999990000</div></div>
    <div class="t o"><div class="t i">Sender Ip</div><div class="m">200.1.2.3</div></div>
    <div class="t o"><div class="t i">Type</div><div class="m">image</div></div>
  </div></div>
</div>
</body></html>`

func TestExtractNestedRecords(t *testing.T) {
	result, err := Extract([]byte(nestedDoc), FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, StrategyNestedRecord, result.Strategy)
	require.Len(t, result.Records, 2)

	first := result.Records[0]
	assert.Equal(t, "2024-02-01 10:15:00 UTC", first[FieldTimestamp])
	assert.Equal(t, "5511999990000", first[FieldSender])
	assert.Equal(t, "5511888887777", first[FieldRecipient])
	assert.Equal(t, "187.10.20.30", first[FieldIP])
	assert.Equal(t, "40123", first[FieldPort])
	assert.Equal(t, "text", first[FieldType])

	// The account block's number is applied to every record, "+" stripped.
	assert.Equal(t, "5511999990000", first[FieldTarget])
	assert.Equal(t, "5511999990000", result.Records[1][FieldTarget])
}

func TestMapRecordKeySenderPrefixes(t *testing.T) {
	// "Sender Ip" and "Sender Port" share the "Sender" prefix and must not
	// be taken for the sender number.
	tests := []struct {
		key  string
		role FieldRole
		ok   bool
	}{
		{"Sender Ip", FieldIP, true},
		{"Sender Port", FieldPort, true},
		{"Sender", FieldSender, true},
		{"Recipients", FieldRecipient, true},
		{"Message Timestamp", FieldTimestamp, true},
		{"Type", FieldType, true},
		{"Unknown Label", "", false},
	}

	for _, tt := range tests {
		role, ok := mapRecordKey(tt.key)
		assert.Equal(t, tt.ok, ok, "key %q", tt.key)
		assert.Equal(t, tt.role, role, "key %q", tt.key)
	}
}

func TestExtractNestedRecordsLabelWithFormattingChildren(t *testing.T) {
	// Labels may carry nested formatting elements; only the label's own text
	// counts, so "Sender" inside a <b>-decorated block still maps correctly.
	doc := `
<div class="t o">
  <div class="t i">Message</div>
  <div class="m"><div>
    <div class="t o"><div class="t i">Sender<b>*</b></div><div class="m">5511999990000</div></div>
    <div class="t o"><div class="t i">Type</div><div class="m">text</div></div>
  </div></div>
</div>`

	result, err := Extract([]byte(doc), FormatHTML)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "5511999990000", result.Records[0][FieldSender])
}

func TestExtractNestedRecordsIgnoresNonMessageBlocks(t *testing.T) {
	doc := `
<div class="t o">
  <div class="t i">Device Info</div>
  <div class="m"><div>
    <div class="t o"><div class="t i">Type</div><div class="m">android</div></div>
  </div></div>
</div>`

	result, err := Extract([]byte(doc), FormatHTML)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
}

func TestExtractNestedRecordsAppliesAccountToRecordsWithoutTarget(t *testing.T) {
	doc := `
<div class="t o">
  <div class="t i">Account Identifier</div>
  <div class="m">+5511000001111</div>
</div>
<div class="t o">
  <div class="t i">Message</div>
  <div class="m"><div>
    <div class="t o"><div class="t i">Sender</div><div class="m">5511999990000</div></div>
  </div></div>
</div>`

	result, err := Extract([]byte(doc), FormatHTML)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "5511000001111", result.Records[0][FieldTarget])
}
