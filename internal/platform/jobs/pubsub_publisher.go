package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/atelier-gallery/api/internal/services"
)

// orderEventPayload is the JSON document consumers receive.
type orderEventPayload struct {
	Type                  string    `json:"type"`
	OrderID               string    `json:"orderId"`
	OrderNumber           string    `json:"orderNumber"`
	UserID                string    `json:"userId,omitempty"`
	PreviousStatus        string    `json:"previousStatus,omitempty"`
	CurrentStatus         string    `json:"currentStatus"`
	PreviousPaymentStatus string    `json:"previousPaymentStatus,omitempty"`
	CurrentPaymentStatus  string    `json:"currentPaymentStatus"`
	Total                 int64     `json:"total"`
	ActorID               string    `json:"actorId,omitempty"`
	OccurredAt            time.Time `json:"occurredAt"`
}

func newOrderEventPayload(event services.OrderEvent) orderEventPayload {
	return orderEventPayload{
		Type:                  event.Type,
		OrderID:               event.OrderID,
		OrderNumber:           event.OrderNumber,
		UserID:                event.UserID,
		PreviousStatus:        event.PreviousStatus,
		CurrentStatus:         event.CurrentStatus,
		PreviousPaymentStatus: event.PreviousPaymentStatus,
		CurrentPaymentStatus:  event.CurrentPaymentStatus,
		Total:                 event.Total,
		ActorID:               event.ActorID,
		OccurredAt:            event.OccurredAt.UTC(),
	}
}

// PubSubOrderEventPublisher publishes order events to a Pub/Sub topic. Messages for one order
// share an ordering key so consumers see them in commit order.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher wraps topic and enables message ordering on it.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent blocks until Pub/Sub acknowledges the message.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}
	orderID := strings.TrimSpace(event.OrderID)
	if orderID == "" {
		return errors.New("pubsub order event publisher: order id is required")
	}

	data, err := p.marshal(newOrderEventPayload(event))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", orderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "status", event.CurrentStatus)
	setAttr(attrs, "paymentStatus", event.CurrentPaymentStatus)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderID,
	})
	if _, err := result.Get(ctx); err != nil {
		// a failed publish pauses the ordering key until resumed
		p.topic.ResumePublish(orderID)
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// LoggingOrderEventPublisher writes order events to the log. It is used when no topic is
// configured so local runs still show the event stream.
type LoggingOrderEventPublisher struct {
	logger *zap.Logger
}

// NewLoggingOrderEventPublisher returns a publisher that logs at info level.
func NewLoggingOrderEventPublisher(logger *zap.Logger) *LoggingOrderEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingOrderEventPublisher{logger: logger}
}

func (p *LoggingOrderEventPublisher) PublishOrderEvent(_ context.Context, event services.OrderEvent) error {
	p.logger.Info("order event",
		zap.String("type", event.Type),
		zap.String("orderId", event.OrderID),
		zap.String("orderNumber", event.OrderNumber),
		zap.String("status", event.CurrentStatus),
		zap.String("paymentStatus", event.CurrentPaymentStatus),
		zap.Int64("total", event.Total),
		zap.String("actorId", event.ActorID),
	)
	return nil
}
