// Package importer is the top-level entry point for document ingestion: it
// wires format detection, normalization, identity resolution and batched
// persistence together per uploaded document.
package importer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/operis/record-ingestion/internal/database"
	"github.com/operis/record-ingestion/internal/extract"
	"github.com/operis/record-ingestion/internal/metrics"
	"github.com/operis/record-ingestion/internal/persister"
	"github.com/operis/record-ingestion/internal/processor"
	"github.com/operis/record-ingestion/internal/resolver"
)

// Stores is one transactional view over the persistence layer. One instance
// covers exactly one document: either everything it wrote commits, or the
// whole document rolls back, FileRecord row included.
type Stores interface {
	Files() database.FileStore
	Phones() database.PhoneStore
	IPs() database.IPStore
	Messages() database.MessageStore
	Commit() error
	Rollback() error
}

// DB opens per-document transactions.
type DB interface {
	Begin(ctx context.Context) (Stores, error)
}

// EventPublisher receives post-import notifications. Publishing failures are
// logged, never fatal: ingestion must not depend on the event bus.
type EventPublisher interface {
	PublishFileImported(operationID, fileID int64, filename string, persisted int, rejected map[processor.RejectReason]int) error
	PublishEnrichmentRequested(operationID int64) error
}

// Document is one uploaded file.
type Document struct {
	Filename string
	Content  []byte
}

// DocumentError is a fatal per-document failure, carrying the filename so
// the caller can tell which upload broke.
type DocumentError struct {
	Filename string
	Err      error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("failed to process document %s: %v", e.Filename, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Result aggregates one import request. Partial success is the expected
// steady state: failed documents roll back individually without affecting
// their siblings.
type Result struct {
	Persisted int
	Skipped   []string
	Rejected  map[processor.RejectReason]int
	Failures  []*DocumentError
}

// Importer processes upload batches strictly sequentially. Identity
// resolution relies on per-import caches and read-then-write storage access,
// so documents are never interleaved within one request.
type Importer struct {
	db        DB
	events    EventPublisher
	metrics   *metrics.Collector
	logger    *logrus.Logger
	batchSize int
}

// New creates an importer.
func New(db DB, events EventPublisher, collector *metrics.Collector, logger *logrus.Logger, batchSize int) *Importer {
	return &Importer{
		db:        db,
		events:    events,
		metrics:   collector,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Import ingests the documents in order received. Files with unsupported
// extensions are skipped silently; files whose content hash already exists
// for the operation are reported in Result.Skipped without re-parsing.
func (imp *Importer) Import(ctx context.Context, operationID int64, docs []Document) *Result {
	result := &Result{
		Rejected: make(map[processor.RejectReason]int),
	}

	for _, doc := range docs {
		format, ok := formatForFilename(doc.Filename)
		if !ok {
			continue
		}

		persisted, err := imp.importDocument(ctx, operationID, doc, format, result)
		if err != nil {
			docErr := &DocumentError{Filename: doc.Filename, Err: err}
			result.Failures = append(result.Failures, docErr)
			imp.metrics.IncrementCounter("documents_failed_total")
			imp.logger.WithError(err).WithFields(logrus.Fields{
				"operation_id": operationID,
				"filename":     doc.Filename,
			}).Error("Document import failed")
			continue
		}

		result.Persisted += persisted
	}

	if result.Persisted > 0 {
		if err := imp.events.PublishEnrichmentRequested(operationID); err != nil {
			imp.logger.WithError(err).WithField("operation_id", operationID).
				Error("Failed to publish enrichment request")
		}
	}

	return result
}

// importDocument runs the whole pipeline for one document inside a single
// transaction and returns the number of messages persisted from it.
func (imp *Importer) importDocument(
	ctx context.Context,
	operationID int64,
	doc Document,
	format extract.Format,
	result *Result,
) (persisted int, err error) {
	start := time.Now()
	defer func() {
		imp.metrics.RecordHistogram("document_duration_seconds", time.Since(start).Seconds())
	}()

	sum := md5.Sum(doc.Content)
	hash := hex.EncodeToString(sum[:])

	stores, err := imp.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			stores.Rollback()
		}
	}()

	existing, err := stores.Files().FindByHash(ctx, operationID, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to check content hash: %w", err)
	}
	if existing != nil {
		result.Skipped = append(result.Skipped, doc.Filename)
		imp.metrics.IncrementCounter("documents_skipped_total")
		imp.logger.WithFields(logrus.Fields{
			"operation_id": operationID,
			"filename":     doc.Filename,
		}).Info("Duplicate document skipped")
		return 0, nil
	}

	meta := extract.ExtractMetadata(doc.Content, format)

	file := &database.File{
		OperationID:      operationID,
		Name:             doc.Filename,
		ContentHash:      hash,
		TargetIdentifier: optional(meta.TargetIdentifier),
		PeriodStart:      optional(meta.PeriodStart),
		PeriodEnd:        optional(meta.PeriodEnd),
	}
	if err := stores.Files().Create(ctx, file); err != nil {
		return 0, fmt.Errorf("failed to create file record: %w", err)
	}

	extracted, err := extract.Extract(doc.Content, format)
	if err != nil {
		return 0, err
	}

	// An HTML document with no recognizable records is a malformed export;
	// an empty PDF report is just an empty result.
	if len(extracted.Records) == 0 && extracted.Strategy != extract.StrategyPDFText {
		return 0, fmt.Errorf("no records found via %s strategy", extracted.Strategy)
	}

	rejected := make(map[processor.RejectReason]int)

	batch := persister.New(stores.Messages(), imp.batchSize)
	identities := resolver.New(stores.Phones(), stores.IPs(), operationID, imp.logger)

	for _, raw := range extracted.Records {
		record, reason := processor.Normalize(raw)
		if reason != processor.RejectNone {
			rejected[reason]++
			imp.metrics.IncrementRejection(string(reason))
			continue
		}

		if record.Malformed {
			// Persisted anyway; counted for the import summary.
			rejected[processor.RejectMalformed]++
			imp.metrics.IncrementRejection(string(processor.RejectMalformed))
		}

		ipID, err := identities.Resolve(ctx, record)
		if err != nil {
			return 0, err
		}

		message := &database.Message{
			OperationID: operationID,
			Target:      optional(record.Target),
			Sender:      record.Sender,
			Recipient:   record.Recipient,
			IPID:        ipID,
			Port:        record.Port,
			OccurredAt:  record.OccurredAt,
			MessageType: record.Type,
		}
		if err := batch.Add(ctx, message); err != nil {
			return 0, err
		}
	}

	if err := batch.Flush(ctx); err != nil {
		return 0, err
	}

	if err := stores.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit document: %w", err)
	}
	committed = true

	for reason, count := range rejected {
		result.Rejected[reason] += count
	}

	imp.metrics.IncrementCounter("documents_imported_total")
	imp.metrics.RecordHistogram("document_records_persisted", float64(batch.Persisted()))

	imp.logger.WithFields(logrus.Fields{
		"operation_id": operationID,
		"filename":     doc.Filename,
		"strategy":     extracted.Strategy.String(),
		"persisted":    batch.Persisted(),
		"rejected":     rejected,
	}).Info("Document imported")

	if err := imp.events.PublishFileImported(operationID, file.ID, doc.Filename, batch.Persisted(), rejected); err != nil {
		imp.logger.WithError(err).WithField("filename", doc.Filename).
			Error("Failed to publish file imported event")
	}

	return batch.Persisted(), nil
}

func formatForFilename(filename string) (extract.Format, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return extract.FormatHTML, true
	case ".pdf":
		return extract.FormatPDF, true
	default:
		return 0, false
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
