package logging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink mirrors log events to a Kafka topic using segmentio/kafka-go,
// so an external worker can index them (e.g. into Loki or a warehouse).
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink that writes events to the given topic.
// Returns nil when brokers or topic are unset. Call Close when shutting down.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{writer: writer}
}

// Emit serializes the event as JSON and writes it to the topic, keyed by
// channel so per-channel ordering is preserved within a partition.
func (s *KafkaSink) Emit(ctx context.Context, e Event) error {
	if s == nil || s.writer == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()
	return s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(e.Channel),
		Value: payload,
	})
}

// Close closes the Kafka writer. Safe to call multiple times.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
