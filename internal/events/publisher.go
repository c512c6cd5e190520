// internal/events/publisher.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"sokopay-service/internal/domain/payment"
)

// StatusChangedEvent is emitted after a payment record commits a status
// transition. Consumers (order fulfilment, notifications) key on the
// checkout request ID.
type StatusChangedEvent struct {
	PaymentID         string         `json:"payment_id"`
	CheckoutRequestID string         `json:"checkout_request_id,omitempty"`
	Status            payment.Status `json:"status"`
	PreviousStatus    payment.Status `json:"previous_status,omitempty"`
	Amount            int64          `json:"amount,omitempty"`
	ReceiptNumber     string         `json:"receipt_number,omitempty"`
	OccurredAt        time.Time      `json:"occurred_at"`
}

type Publisher interface {
	PaymentStatusChanged(ctx context.Context, ev StatusChangedEvent) error
	Close() error
}

// KafkaPublisher writes status events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) PaymentStatusChanged(ctx context.Context, ev StatusChangedEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	key := ev.CheckoutRequestID
	if key == "" {
		key = ev.PaymentID
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	}); err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PaymentStatusChanged(context.Context, StatusChangedEvent) error { return nil }
func (NopPublisher) Close() error                                                   { return nil }
