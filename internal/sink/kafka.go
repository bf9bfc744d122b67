package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes displays to a topic keyed by element id, so compacted
// topics retain the latest display per element.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink builds a writer for brokers/topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Dialer:       dialer,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: int(kafka.RequireOne),
		Async:        true,
	})
	return &KafkaSink{writer: w}
}

// Present enqueues the display.
func (k *KafkaSink) Present(ctx context.Context, d Display) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("kafka: marshal display: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(d.ElementID),
		Value: payload,
		Time:  d.At,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", d.ElementID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

var _ Sink = (*KafkaSink)(nil)
