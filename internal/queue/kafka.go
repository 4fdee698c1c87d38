package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"mininter-gps-proxy/backend/internal/logging"
)

// KafkaProducer writes sync jobs to the job topic, keyed by municipality so
// each municipality's jobs land on one partition in order.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer returns a producer for the given brokers and topic.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Enqueue publishes the job.
func (p *KafkaProducer) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshaling job: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.MunicipalityID),
		Value: payload,
	})
}

// Close flushes and closes the writer.
func (p *KafkaProducer) Close() error { return p.writer.Close() }

// KafkaConsumer reads sync jobs and hands them to a Handler.
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *logging.Logger
}

// NewKafkaConsumer returns a consumer in the given group.
func NewKafkaConsumer(brokers []string, topic, groupID string, logger *logging.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return &KafkaConsumer{reader: reader, logger: logger}
}

// Run consumes jobs until ctx is canceled. Malformed messages are logged and
// dropped; handler errors are logged but do not stop the loop, since the
// handler owns its own retry policy.
func (c *KafkaConsumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("queue: reading message: %w", err)
		}

		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.logger.Error(ctx, logging.ChannelSystem, "dropping malformed job message", map[string]any{
				"offset": msg.Offset,
				"error":  err.Error(),
			})
			continue
		}

		if err := handle(ctx, job); err != nil {
			c.logger.Error(ctx, logging.ChannelSystem, "job handler failed", map[string]any{
				"job_id":       job.JobID,
				"municipality": job.MunicipalityID,
				"error":        err.Error(),
			})
		}
	}
}

// Close closes the reader.
func (c *KafkaConsumer) Close() error { return c.reader.Close() }
