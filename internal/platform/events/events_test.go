package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tindahan/api/internal/services"
)

var occurredAt = time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)

func statusChanged() services.OrderEvent {
	return services.OrderEvent{
		Type:           "order.status_changed",
		OrderID:        "ord_1",
		PreviousStatus: "PROCESSING",
		CurrentStatus:  "CANCELLED",
		ActorID:        "acct-1",
		OccurredAt:     occurredAt,
		Metadata:       map[string]any{"payment_status": "REFUNDED"},
	}
}

func TestPubSubTransportPublishesEnvelope(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	transport, err := NewPubSubTransport(topic)
	if err != nil {
		t.Fatalf("NewPubSubTransport: %v", err)
	}
	publisher, err := NewPublisher(transport)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer func() { _ = publisher.Close() }()

	if err := publisher.PublishOrderEvent(ctx, statusChanged()); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var envelope Envelope
	if err := json.Unmarshal(messages[0].Data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.OrderID != "ord_1" || envelope.CurrentStatus != "CANCELLED" || envelope.ID == "" {
		t.Fatalf("unexpected envelope %#v", envelope)
	}
	if !envelope.OccurredAt.Equal(occurredAt) {
		t.Fatalf("expected occurred_at %s, got %s", occurredAt, envelope.OccurredAt)
	}
	if got := messages[0].Attributes["orderId"]; got != "ord_1" {
		t.Fatalf("expected orderId attribute, got %q", got)
	}
}

type stubWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaTransportKeysByOrder(t *testing.T) {
	writer := &stubWriter{}
	publisher, err := NewPublisher(&KafkaTransport{writer: writer})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if err := publisher.PublishOrderEvent(context.Background(), statusChanged()); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "ord_1" {
		t.Fatalf("expected key ord_1, got %q", msg.Key)
	}
	found := false
	for _, h := range msg.Headers {
		if h.Key == "type" && string(h.Value) == "order.status_changed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected type header, got %+v", msg.Headers)
	}
	_ = publisher.Close()
	if !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestKafkaTransportPropagatesErrors(t *testing.T) {
	publisher, _ := NewPublisher(&KafkaTransport{writer: &stubWriter{err: errors.New("leader not available")}})
	if err := publisher.PublishOrderEvent(context.Background(), statusChanged()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewKafkaTransportValidates(t *testing.T) {
	if _, err := NewKafkaTransport(nil, "order-events"); err == nil {
		t.Fatalf("expected broker error")
	}
	if _, err := NewKafkaTransport([]string{"localhost:9092"}, " "); err == nil {
		t.Fatalf("expected topic error")
	}
}

func TestLogTransportWritesEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher, _ := NewPublisher(NewLogTransport(zap.New(core)))
	if err := publisher.PublishOrderEvent(context.Background(), statusChanged()); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}
	entries := logs.FilterMessage("order event").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["key"] != "ord_1" {
		t.Fatalf("unexpected fields %+v", entries[0].ContextMap())
	}
}
