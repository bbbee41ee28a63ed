package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport writes to a Kafka topic. Messages are keyed by order id.
type KafkaTransport struct {
	writer messageWriter
}

// NewKafkaTransport builds a writer for topic on brokers.
func NewKafkaTransport(brokers []string, topic string) (*KafkaTransport, error) {
	var addrs []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("events: at least one kafka broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("events: kafka topic is required")
	}
	return &KafkaTransport{writer: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           5 * time.Second,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (t *KafkaTransport) Send(ctx context.Context, msg Message) error {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	err := t.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	return nil
}

func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
