package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubTransport publishes to a Google Cloud Pub/Sub topic.
type PubSubTransport struct {
	topic *pubsub.Topic
}

// NewPubSubTransport wraps topic.
func NewPubSubTransport(topic *pubsub.Topic) (*PubSubTransport, error) {
	if topic == nil {
		return nil, errors.New("events: pubsub topic is required")
	}
	return &PubSubTransport{topic: topic}, nil
}

// Send blocks until the server acknowledges the message.
func (t *PubSubTransport) Send(ctx context.Context, msg Message) error {
	result := t.topic.Publish(ctx, &pubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (t *PubSubTransport) Close() error {
	t.topic.Stop()
	return nil
}
