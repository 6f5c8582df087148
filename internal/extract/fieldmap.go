// Package extract turns raw document bytes into per-message field mappings.
// Three layouts are supported: HTML tables, the nested-div "record" export,
// and free-text PDF reports. The layout is chosen by structural inspection,
// never mixed within one document.
package extract

// FieldRole identifies what a raw extracted value means for one message.
type FieldRole string

const (
	FieldTarget    FieldRole = "target"
	FieldSender    FieldRole = "sender"
	FieldRecipient FieldRole = "recipient"
	FieldIP        FieldRole = "ip"
	FieldPort      FieldRole = "port"
	FieldTimestamp FieldRole = "timestamp"
	FieldType      FieldRole = "type"
)

// RawFieldMap holds the untyped field values extracted from one document
// entry. It is transient: produced here, consumed by the normalizer, never
// persisted.
type RawFieldMap map[FieldRole]string

// Format is the declared document format, inferred from the filename
// extension at the service boundary.
type Format int

const (
	FormatHTML Format = iota
	FormatPDF
)

// Strategy is the field-mapping strategy selected for one document.
type Strategy int

const (
	StrategyTable Strategy = iota
	StrategyNestedRecord
	StrategyPDFText
)

func (s Strategy) String() string {
	switch s {
	case StrategyTable:
		return "table"
	case StrategyNestedRecord:
		return "nested-record"
	case StrategyPDFText:
		return "pdf-text"
	default:
		return "unknown"
	}
}

// Metadata holds header-level facts extracted from a document. Empty fields
// mean the pattern was not found; extraction never fails a whole import.
type Metadata struct {
	TargetIdentifier string
	PeriodStart      string
	PeriodEnd        string
}
