// Package kafka relays records from a Kafka topic into a job queue.
// Each record becomes one message; the record offset is committed only
// after the message was published, so a crash replays rather than loses
// records. Replays of keyed records are absorbed by id deduplication.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"jobqueue-go/internal/config"
	"jobqueue-go/internal/queue"
)

// DefaultRetryInterval is the pause before retrying a failed publish.
const DefaultRetryInterval = time.Second

// Reader is the subset of *kafka.Reader the relay uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes messages to a job queue. *queue.Queue satisfies it.
type Publisher interface {
	Name() string
	NewMessage(payload []byte, opts ...queue.MessageOption) *queue.Message
	Publish(ctx context.Context, msg *queue.Message) error
}

// Relay consumes a Kafka topic and publishes every record to a queue.
type Relay struct {
	reader        Reader
	target        Publisher
	retryInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a consumer-group reader for the configured topic.
func NewReader(cfg *config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
}

// NewRelay creates a relay from reader into target.
func NewRelay(reader Reader, target Publisher, logger *slog.Logger) *Relay {
	return &Relay{
		reader:        reader,
		target:        target,
		retryInterval: DefaultRetryInterval,
		logger:        logger,
	}
}

// Start relays records until the context is canceled or a commit fails.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting kafka relay", "queue", r.target.Name())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("kafka relay stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		record, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("failed to fetch record", "error", err)
			continue
		}

		msg := ToMessage(r.target, record)
		if err := r.publish(ctx, msg, record); err != nil {
			return err
		}

		// Commit the record after it is safely queued
		if err := r.reader.CommitMessages(ctx, record); err != nil {
			r.logger.Error("failed to commit record",
				"error", err,
				"partition", record.Partition,
				"offset", record.Offset,
			)
			return fmt.Errorf("failed to commit record: %w", err)
		}
	}
}

// publish retries until the message is queued or ctx ends.
func (r *Relay) publish(ctx context.Context, msg *queue.Message, record kafka.Message) error {
	for {
		err := r.target.Publish(ctx, msg)
		if err == nil {
			r.logger.Debug("record relayed",
				"id", msg.ID(),
				"state", msg.State().String(),
				"partition", record.Partition,
				"offset", record.Offset,
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Error("failed to publish record, retrying",
			"error", err,
			"id", msg.ID(),
			"partition", record.Partition,
			"offset", record.Offset,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryInterval):
		}
	}
}

// ToMessage converts a record: a non-empty key becomes the message id,
// the value becomes the payload.
func ToMessage(target Publisher, record kafka.Message) *queue.Message {
	return target.NewMessage(record.Value, queue.WithID(string(record.Key)))
}

// Close closes the Kafka reader.
func (r *Relay) Close() error {
	if r.reader != nil {
		return r.reader.Close()
	}
	return nil
}
