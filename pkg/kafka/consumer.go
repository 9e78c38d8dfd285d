// Package kafka wraps segmentio/kafka-go for the two event streams the
// engine uses: search analytics and index.complete notifications. Values are
// JSON on the wire.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/resilience"
)

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	groupID     string
	startOffset int64
	retry       resilience.RetryConfig
}

// WithGroupID overrides the consumer group from config.
func WithGroupID(id string) ConsumerOption {
	return func(o *consumerOptions) { o.groupID = id }
}

// WithStartOffset sets where a new group starts reading: kafka.FirstOffset
// or kafka.LastOffset.
func WithStartOffset(offset int64) ConsumerOption {
	return func(o *consumerOptions) { o.startOffset = offset }
}

// WithRetry controls how often a failing handler is retried before the
// message is skipped.
func WithRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(o *consumerOptions) { o.retry = cfg }
}

// Consumer reads a topic within a consumer group and hands each message to a
// MessageHandler. Offsets are committed once the handler succeeds or its
// retries are exhausted.
type Consumer struct {
	reader  *kafka.Reader
	topic   string
	retry   resilience.RetryConfig
	logger  *slog.Logger
	handler MessageHandler
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{
		groupID:     cfg.ConsumerGroup,
		startOffset: kafka.LastOffset,
		retry:       resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     o.groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: o.startOffset,
	})
	return &Consumer{
		reader:  r,
		topic:   topic,
		retry:   o.retry,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", o.groupID),
		handler: handler,
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()

	fetchBackoff := 100 * time.Millisecond
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err, "backoff", fetchBackoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchBackoff):
			}
			fetchBackoff = min(fetchBackoff*2, 5*time.Second)
			continue
		}
		fetchBackoff = 100 * time.Millisecond

		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process runs the handler with retries. It reports whether the handler
// eventually succeeded; a message that keeps failing is logged and skipped.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	c.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	err := resilience.Retry(ctx, "kafka-handle-"+c.topic, c.retry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil {
		c.logger.Error("skipping message after handler failures",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return false
	}
	return true
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
