// Package publish delivers consumed token field changes to Kafka, keyed by
// mint so per-token ordering survives partitioning.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"launchfeed/internal/observability"
)

// KafkaOptions configures a KafkaPublisher.
type KafkaOptions struct {
	// Brokers is the broker address list. Required.
	Brokers []string
	// Topic is the change topic. Required.
	Topic string

	// BatchTimeout is how long the writer may hold messages for batching.
	BatchTimeout time.Duration

	Logger *log.Logger
}

// changeMessage is the wire shape of one published change set.
type changeMessage struct {
	Mint      string         `json:"mint_address"`
	Changes   map[string]any `json:"changes"`
	Timestamp int64          `json:"timestamp"`
}

// KafkaPublisher writes change messages with the mint as partition key.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	logger *log.Logger
}

// NewKafkaPublisher creates a publisher. The writer is async so a slow
// broker cannot stall the ingestion path.
func NewKafkaPublisher(opts KafkaOptions) *KafkaPublisher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: batchTimeout,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Printf("[publish] delivery of %d messages failed: %v", len(messages), err)
			}
		},
	}

	return &KafkaPublisher{
		writer: writer,
		topic:  opts.Topic,
		logger: logger,
	}
}

// PublishChanges sends one token's consumed change map.
func (p *KafkaPublisher) PublishChanges(ctx context.Context, mint string, changes map[string]any) error {
	if mint == "" || len(changes) == 0 {
		return nil
	}

	payload, err := json.Marshal(changeMessage{
		Mint:      mint,
		Changes:   changes,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal change message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(mint),
		Value: payload,
	})
	observability.RecordPublish(err)
	if err != nil {
		return fmt.Errorf("write change message: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Stats returns writer statistics for the status endpoint.
func (p *KafkaPublisher) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
