// Package processor converts raw field mappings into canonical message
// records, applying mandatory-field validation and type coercion.
package processor

import (
	"strings"
	"time"

	"github.com/operis/record-ingestion/internal/extract"
)

// RejectReason tags why a raw record was excluded from persistence.
type RejectReason string

const (
	RejectNone               RejectReason = ""
	RejectMissingType        RejectReason = "missing_type"
	RejectMissingSenderOrRcp RejectReason = "missing_sender_or_recipient"
	RejectMissingTimestamp   RejectReason = "missing_timestamp"
	RejectMissingIP          RejectReason = "missing_ip"
	RejectMalformed          RejectReason = "malformed"
)

// RejectReasons lists every reason in check order, for stats reporting.
var RejectReasons = []RejectReason{
	RejectMissingType,
	RejectMissingSenderOrRcp,
	RejectMissingTimestamp,
	RejectMissingIP,
	RejectMalformed,
}

// Record is one validated message. OccurredAt is nil when the raw timestamp
// was present but unparseable; such records are still persisted (Malformed is
// set for reporting only). Target and Port are the only optional fields.
type Record struct {
	Target     string
	Sender     string
	Recipient  string
	IPAddress  string
	Port       *int
	OccurredAt *time.Time
	Type       string

	// Malformed marks a non-empty timestamp that failed to parse.
	Malformed bool
}

// Source-document timestamp layouts, tried in order.
var timestampLayouts = []string{
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
}

// Normalize validates a raw field mapping and coerces it into a Record.
// Mandatory-field checks run in fixed order (type, sender, recipient,
// timestamp, ip); the first failure determines the rejection reason and
// short-circuits the rest.
func Normalize(raw extract.RawFieldMap) (*Record, RejectReason) {
	msgType := strings.TrimSpace(raw[extract.FieldType])
	if msgType == "" {
		return nil, RejectMissingType
	}

	sender := strings.TrimSpace(raw[extract.FieldSender])
	if sender == "" {
		return nil, RejectMissingSenderOrRcp
	}

	recipient := strings.TrimSpace(raw[extract.FieldRecipient])
	if recipient == "" {
		return nil, RejectMissingSenderOrRcp
	}

	rawTimestamp := raw[extract.FieldTimestamp]
	if strings.TrimSpace(rawTimestamp) == "" {
		return nil, RejectMissingTimestamp
	}

	ipAddress := strings.TrimSpace(raw[extract.FieldIP])
	if ipAddress == "" {
		return nil, RejectMissingIP
	}

	record := &Record{
		Target:    raw[extract.FieldTarget],
		Sender:    raw[extract.FieldSender],
		Recipient: raw[extract.FieldRecipient],
		IPAddress: ipAddress,
		Type:      raw[extract.FieldType],
	}

	// A non-empty timestamp that fails both layouts does NOT reject the
	// record: it is persisted with a null timestamp so non-temporal
	// aggregates still see it. Downstream treats null as "unknown".
	if ts := parseTimestamp(rawTimestamp); ts != nil {
		record.OccurredAt = ts
	} else {
		record.Malformed = true
	}

	if port, ok := parsePort(raw[extract.FieldPort]); ok {
		record.Port = &port
	}

	return record, RejectNone
}

func parseTimestamp(raw string) *time.Time {
	cleaned := strings.TrimSuffix(strings.TrimSpace(raw), " UTC")
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			return &ts
		}
	}
	return nil
}

// parsePort accepts only values composed entirely of ASCII digits, checked
// against the raw value: surrounding whitespace disqualifies it.
func parsePort(raw string) (int, bool) {
	if raw == "" || len(raw) > 9 {
		return 0, false
	}

	port := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, false
		}
		port = port*10 + int(c-'0')
	}

	return port, true
}
