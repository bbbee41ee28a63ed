package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tindahan/api/internal/services"
)

// Message is a transport-neutral encoded event.
type Message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Transport delivers encoded messages to a broker.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Envelope is the JSON body of every published order event.
type Envelope struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	OrderID        string         `json:"order_id"`
	PreviousStatus string         `json:"previous_status,omitempty"`
	CurrentStatus  string         `json:"current_status,omitempty"`
	ActorID        string         `json:"actor_id,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Publisher adapts a Transport to services.OrderEventPublisher.
type Publisher struct {
	transport Transport
	newID     func() string
	marshal   func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*Publisher)(nil)

// NewPublisher constructs a publisher over transport.
func NewPublisher(transport Transport) (*Publisher, error) {
	if transport == nil {
		return nil, errors.New("events: transport is required")
	}
	return &Publisher{
		transport: transport,
		newID:     func() string { return ulid.Make().String() },
		marshal:   json.Marshal,
	}, nil
}

// PublishOrderEvent encodes event and hands it to the transport, keyed by order id so a
// partitioned broker keeps one order's events in sequence.
func (p *Publisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.transport == nil {
		return errors.New("events: publisher not initialised")
	}
	envelope := Envelope{
		ID:             p.newID(),
		Type:           event.Type,
		OrderID:        event.OrderID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	}
	data, err := p.marshal(envelope)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}

	attrs := map[string]string{"eventId": envelope.ID}
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "status", event.CurrentStatus)

	if err := p.transport.Send(ctx, Message{Key: event.OrderID, Data: data, Attributes: attrs}); err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

// Close releases the underlying transport.
func (p *Publisher) Close() error {
	if p == nil || p.transport == nil {
		return nil
	}
	return p.transport.Close()
}

func setAttr(attrs map[string]string, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}
