package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all metrics for the record ingestion service
type Collector struct {
	// Request counters
	importRequests      prometheus.Counter
	importRequestErrors prometheus.Counter

	// Document counters
	documentsImported prometheus.Counter
	documentsSkipped  prometheus.Counter
	documentsFailed   prometheus.Counter

	// Record metrics
	recordsRejected *prometheus.CounterVec

	// Processing histograms
	importDuration       prometheus.Histogram
	documentDuration     prometheus.Histogram
	documentRecords      prometheus.Histogram
	uploadedDocumentSize prometheus.Histogram

	// Database metrics
	dbConnections prometheus.Gauge

	// Kafka metrics
	kafkaMessages      prometheus.Counter
	kafkaMessageErrors prometheus.Counter
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		importRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "import_requests_total",
			Help:      "Total number of import requests",
		}),
		importRequestErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "import_request_errors_total",
			Help:      "Total number of failed import requests",
		}),
		documentsImported: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "documents_imported_total",
			Help:      "Total number of documents imported successfully",
		}),
		documentsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "documents_skipped_total",
			Help:      "Total number of duplicate documents skipped",
		}),
		documentsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "documents_failed_total",
			Help:      "Total number of documents that failed to import",
		}),
		recordsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "records_rejected_total",
			Help:      "Total number of records rejected during normalization",
		}, []string{"reason"}),
		importDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "import_duration_seconds",
			Help:      "Duration of import requests",
			Buckets:   prometheus.DefBuckets,
		}),
		documentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "document_duration_seconds",
			Help:      "Duration of single document processing",
			Buckets:   prometheus.DefBuckets,
		}),
		documentRecords: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "document_records_persisted",
			Help:      "Number of records persisted per document",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		uploadedDocumentSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "uploaded_document_size_bytes",
			Help:      "Size of uploaded documents in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		dbConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "db_connections",
			Help:      "Number of open database connections",
		}),
		kafkaMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "kafka_messages_total",
			Help:      "Total number of Kafka messages published",
		}),
		kafkaMessageErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "operis",
			Subsystem: "record_ingestion",
			Name:      "kafka_message_errors_total",
			Help:      "Total number of Kafka publish failures",
		}),
	}
}

// Increment methods
func (c *Collector) IncrementCounter(name string) {
	switch name {
	case "import_requests_total":
		c.importRequests.Inc()
	case "import_request_errors_total":
		c.importRequestErrors.Inc()
	case "documents_imported_total":
		c.documentsImported.Inc()
	case "documents_skipped_total":
		c.documentsSkipped.Inc()
	case "documents_failed_total":
		c.documentsFailed.Inc()
	case "kafka_messages_total":
		c.kafkaMessages.Inc()
	case "kafka_message_errors_total":
		c.kafkaMessageErrors.Inc()
	}
}

// IncrementRejection counts one rejected record by reason
func (c *Collector) IncrementRejection(reason string) {
	c.recordsRejected.WithLabelValues(reason).Inc()
}

// Record histogram values
func (c *Collector) RecordHistogram(name string, value float64) {
	switch name {
	case "import_duration_seconds":
		c.importDuration.Observe(value)
	case "document_duration_seconds":
		c.documentDuration.Observe(value)
	case "document_records_persisted":
		c.documentRecords.Observe(value)
	case "uploaded_document_size_bytes":
		c.uploadedDocumentSize.Observe(value)
	}
}

// Set gauge values
func (c *Collector) RecordGauge(name string, value float64) {
	switch name {
	case "db_connections":
		c.dbConnections.Set(value)
	}
}
