package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/config"
	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/pkg/pool"
	"github.com/freshcart/order-engine/internal/pkg/retry"
)

// StatusEvent is published for every committed order status transition.
// The delivery tracker and other downstream consumers key on the order id.
type StatusEvent struct {
	OrderID string        `json:"order_id"`
	UserID  string        `json:"user_id"`
	Status  domain.Status `json:"status"`
	At      time.Time     `json:"at"`
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Producer publishes status events asynchronously through a worker pool.
// Publishing is best effort: a checkout never blocks on, or fails because
// of, the event bus.
type Producer struct {
	writer Writer
	pool   *pool.Pool
	policy config.Retry
	logger *zap.Logger
}

func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
	}
}

func NewProducer(writer Writer, workers int, policy config.Retry, logger *zap.Logger) *Producer {
	return &Producer{
		writer: writer,
		pool:   pool.New(workers),
		policy: policy,
		logger: logger,
	}
}

// PublishStatus enqueues the event for delivery. The write runs detached
// from the caller's context so a finished (or cancelled) request does not
// abort an in-flight publish.
func (p *Producer) PublishStatus(ev StatusEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal status event", zap.Error(err))
		return
	}

	p.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := retry.Do(ctx, p.policy, 3, func() error {
			return p.writer.WriteMessages(ctx, kafkago.Message{
				Key:   []byte(ev.OrderID),
				Value: raw,
			})
		})
		if err != nil {
			p.logger.Warn("status event publish failed",
				zap.String("order_id", ev.OrderID),
				zap.String("status", string(ev.Status)),
				zap.Error(err),
			)
			return
		}
		p.logger.Debug("status event published",
			zap.String("order_id", ev.OrderID),
			zap.String("status", string(ev.Status)),
		)
	})
}

// Close stops accepting events and waits for in-flight publishes.
func (p *Producer) Close() {
	p.pool.Close()
	p.pool.Wait()
}
