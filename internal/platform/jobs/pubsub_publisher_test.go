package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/atelier-gallery/api/internal/services"
)

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
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
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	defer topic.Stop()

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:                 "order.status_changed",
		OrderID:              "ord_1",
		OrderNumber:          "ART-1714000000000-0001",
		UserID:               "user-1",
		PreviousStatus:       "shipped",
		CurrentStatus:        "delivered",
		CurrentPaymentStatus: "paid",
		Total:                16200,
		ActorID:              "admin-1",
		OccurredAt:           occurred,
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	msg := messages[0]
	if msg.OrderingKey != "ord_1" {
		t.Fatalf("expected ordering key ord_1, got %q", msg.OrderingKey)
	}
	if msg.Attributes["eventType"] != "order.status_changed" || msg.Attributes["status"] != "delivered" {
		t.Fatalf("unexpected attributes %#v", msg.Attributes)
	}
	if _, ok := msg.Attributes["userId"]; ok {
		t.Fatalf("user id should only travel in the payload")
	}

	var payload orderEventPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderNumber != event.OrderNumber || payload.Total != 16200 || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.PreviousPaymentStatus != "" {
		t.Fatalf("expected empty previous payment status, got %q", payload.PreviousPaymentStatus)
	}
}

func TestPubSubOrderEventPublisherValidation(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
	publisher := &PubSubOrderEventPublisher{topic: &pubsub.Topic{}}
	if err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: "order.created"}); err == nil {
		t.Fatal("expected error when order id is missing")
	}
}

func TestLoggingOrderEventPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher := NewLoggingOrderEventPublisher(zap.New(core))

	err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{
		Type:          "order.created",
		OrderID:       "ord_2",
		CurrentStatus: "pending",
		Total:         5400,
	})
	if err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}
	entries := logs.FilterMessage("order event").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["orderId"] != "ord_2" || fields["total"] != int64(5400) {
		t.Fatalf("unexpected fields %#v", fields)
	}
}
