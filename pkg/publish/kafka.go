package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/homewatt/homewatt/pkg/types"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes readings to a topic keyed by device id, so each device's
// readings stay ordered within a partition.
type Kafka struct {
	writer messageWriter
}

// NewKafka returns a Kafka publisher. Connections are made on first write.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (k *Kafka) Name() string { return "kafka" }

// Publish writes all readings in one batch.
func (k *Kafka) Publish(ctx context.Context, readings []types.Reading) error {
	msgs := make([]kafka.Message, 0, len(readings))
	for _, r := range readings {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal reading: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.DeviceID),
			Value: value,
			Time:  r.Timestamp,
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write kafka messages: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
