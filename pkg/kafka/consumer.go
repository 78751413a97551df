// Package kafka wraps segmentio/kafka-go for the repository event streams.
// Producers publish JSON events keyed for partition affinity; consumers hand
// each message to a MessageHandler, retry transient failures and commit an
// offset once its message is handled or dead-lettered.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/resilience"
)

// MessageHandler is a callback invoked for each Kafka message. Errors are
// retried unless wrapped with resilience.Permanent.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader     *kafka.Reader
	topic      string
	handler    MessageHandler
	retry      resilience.RetryConfig
	deadLetter Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewConsumer creates a Consumer for the given topic and handler. m may be
// nil.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, m *metrics.Metrics) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:  r,
		topic:   topic,
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 4, InitialDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second},
		metrics: m,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// WithDeadLetter publishes messages that still fail after retries to pub,
// carrying the failure in headers, and commits them. Without a dead letter
// publisher failed messages are left uncommitted.
func (c *Consumer) WithDeadLetter(pub Publisher) *Consumer {
	c.deadLetter = pub
	return c
}

// Start enters the consume loop until ctx is cancelled. Messages are
// processed strictly in partition order.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", "dead_letter", c.deadLetter != nil)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)
		if !c.handle(ctx, msg) {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handle reports whether msg may be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	err := resilience.Retry(ctx, "handle "+c.topic+" message", c.retry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err == nil {
		c.metrics.MessageConsumed(c.topic, "ok")
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	c.metrics.MessageConsumed(c.topic, "failed")
	c.logger.Error("failed to process message",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
	)
	if c.deadLetter == nil {
		return false
	}
	dead := Event{
		Key: string(msg.Key),
		Raw: msg.Value,
		Headers: map[string]string{
			"error":            err.Error(),
			"source-topic":     c.topic,
			"source-partition": strconv.Itoa(msg.Partition),
			"source-offset":    strconv.FormatInt(msg.Offset, 10),
		},
	}
	if err := c.deadLetter.Publish(ctx, dead); err != nil {
		c.logger.Error("failed to dead-letter message", "offset", msg.Offset, "error", err)
		return false
	}
	c.metrics.MessageConsumed(c.topic, "dead_letter")
	return true
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
