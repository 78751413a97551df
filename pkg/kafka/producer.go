package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
)

// Event is the unit of data published to Kafka. Key selects the partition
// and Value is JSON-serialised; Raw, when set, is sent as is instead.
type Event struct {
	Key     string
	Value   any
	Raw     []byte
	Headers map[string]string
}

// Publisher publishes events. Producer implements it; tests substitute
// in-memory recorders.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic. Events with equal keys
// land on the same partition, so per-store events stay ordered.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish serialises events and writes them in a single call. Writes are
// acknowledged by all in-sync replicas.
func (p *Producer) Publish(ctx context.Context, events ...Event) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value := event.Raw
		if value == nil {
			var err error
			if value, err = json.Marshal(event.Value); err != nil {
				return fmt.Errorf("marshaling event %s: %w", event.Key, err)
			}
		}
		msg := kafka.Message{Key: []byte(event.Key), Value: value}
		for k, v := range event.Headers {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		messages = append(messages, msg)
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish", "count", len(messages), "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
