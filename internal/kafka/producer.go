package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/operis/record-ingestion/internal/config"
	"github.com/operis/record-ingestion/internal/metrics"
	"github.com/operis/record-ingestion/internal/processor"
)

// Producer defines the Kafka producer interface
type Producer interface {
	Publish(topic, key string, message interface{}) error
	Close() error
}

// KafkaProducer implements the Producer interface
type KafkaProducer struct {
	writers map[string]*kafka.Writer
	config  config.KafkaConfig
	metrics *metrics.Collector
	logger  *logrus.Logger
}

// NewProducer creates a new Kafka producer with one writer per topic
func NewProducer(cfg config.KafkaConfig, collector *metrics.Collector, logger *logrus.Logger) (*KafkaProducer, error) {
	producer := &KafkaProducer{
		writers: make(map[string]*kafka.Writer),
		config:  cfg,
		metrics: collector,
		logger:  logger,
	}

	topics := []string{
		cfg.Topics.FileImported,
		cfg.Topics.EnrichmentRequests,
		cfg.Topics.ErrorEvents,
	}

	for _, topic := range topics {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			MaxAttempts:  cfg.ProducerRetries,
			BatchSize:    cfg.ProducerBatchSize,
			BatchTimeout: cfg.ProducerFlushTimeout,
			WriteTimeout: cfg.ProducerTimeout,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		}
		producer.writers[topic] = writer
	}

	return producer, nil
}

// Publish sends a single JSON-encoded message to the specified topic
func (p *KafkaProducer) Publish(topic, key string, message interface{}) error {
	writer, exists := p.writers[topic]
	if !exists {
		return fmt.Errorf("no writer configured for topic: %s", topic)
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(key),
		Value: messageBytes,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{
				Key:   "content-type",
				Value: []byte("application/json"),
			},
			{
				Key:   "source-service",
				Value: []byte("record-ingestion"),
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.ProducerTimeout)
	defer cancel()

	if err := writer.WriteMessages(ctx, kafkaMessage); err != nil {
		p.metrics.IncrementCounter("kafka_message_errors_total")
		p.logger.WithError(err).WithFields(logrus.Fields{
			"topic": topic,
			"key":   key,
		}).Error("Failed to publish message")
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.metrics.IncrementCounter("kafka_messages_total")
	p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"key":   key,
	}).Debug("Message published successfully")

	return nil
}

// Close closes all Kafka writers
func (p *KafkaProducer) Close() error {
	var lastErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			p.logger.WithError(err).WithField("topic", topic).Error("Failed to close writer")
			lastErr = err
		}
	}
	return lastErr
}

// PublishFileImported publishes a file imported event
func (p *KafkaProducer) PublishFileImported(operationID, fileID int64, filename string, persisted int, rejected map[processor.RejectReason]int) error {
	rejectedByReason := make(map[string]int, len(rejected))
	for reason, count := range rejected {
		rejectedByReason[string(reason)] = count
	}

	event := map[string]interface{}{
		"event_id":     uuid.New().String(),
		"event_type":   "file_imported",
		"operation_id": operationID,
		"file_id":      fileID,
		"file_name":    filename,
		"persisted":    persisted,
		"rejected":     rejectedByReason,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}

	return p.Publish(p.config.Topics.FileImported, fmt.Sprintf("%d", fileID), event)
}

// PublishEnrichmentRequested asks downstream consumers to re-enrich an
// operation after new messages landed
func (p *KafkaProducer) PublishEnrichmentRequested(operationID int64) error {
	event := map[string]interface{}{
		"event_id":     uuid.New().String(),
		"event_type":   "enrichment_requested",
		"operation_id": operationID,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}

	return p.Publish(p.config.Topics.EnrichmentRequests, fmt.Sprintf("%d", operationID), event)
}

// PublishErrorEvent publishes an error event
func (p *KafkaProducer) PublishErrorEvent(errorType, service, message string, details map[string]interface{}) error {
	event := map[string]interface{}{
		"event_id":    uuid.New().String(),
		"event_type":  "error",
		"error_type":  errorType,
		"service":     service,
		"message":     message,
		"details":     details,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	return p.Publish(p.config.Topics.ErrorEvents, errorType, event)
}
