// Package kafka publishes order.created events for placed orders.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/kickzhub/storefront/internal/domain/notification"
)

// EventType is the value of the "type" header on every published message.
const EventType = "order.created"

// Producer is the subset of *kafka.Writer the publisher needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the target topic.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// NewWriter returns a writer that tries each message exactly once, keyed by
// order id so events of one order land on one partition.
func NewWriter(cfg Config) *kafka.Writer {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
	}
}

// Publisher is a notification.Sender backed by a Kafka topic.
type Publisher struct {
	producer Producer
}

var _ notification.Sender = (*Publisher)(nil)

// NewPublisher wraps producer.
func NewPublisher(producer Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) Name() string { return "kafka" }

// Send publishes n as a JSON order.created event.
func (p *Publisher) Send(ctx context.Context, n notification.Notice) error {
	msg := kafka.Message{
		Key:   []byte(n.OrderID),
		Value: EncodeEvent(n),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventType)},
		},
		Time: n.PlacedAt,
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s for order %s", EventType, n.OrderID)
	}
	return nil
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

// EncodeEvent renders the event payload.
func EncodeEvent(n notification.Notice) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(n.OrderID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(n.UserID) })
		e.Field("email", func(e *jx.Encoder) { e.Str(n.CustomerEmail) })
		e.Field("status", func(e *jx.Encoder) { e.Str(n.Status) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(n.PaymentMethod) })
		e.Field("total_amount", func(e *jx.Encoder) { e.Raw([]byte(n.TotalAmount.StringFixed(2))) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range n.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					})
				}
			})
		})
		e.Field("placed_at", func(e *jx.Encoder) { e.Str(n.PlacedAt.UTC().Format(time.RFC3339)) })
	})
	return e.Bytes()
}
