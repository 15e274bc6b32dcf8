package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"moneyflow/internal/core/domain"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes notification events to a topic keyed by username, so
// events for one user stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Deliver writes one event and waits for broker acknowledgement.
func (s *KafkaSink) Deliver(ctx context.Context, event domain.NotificationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Username),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "status", Value: []byte(event.Status)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write notification to kafka: %w", err)
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (s *KafkaSink) Name() string {
	return "kafka"
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
