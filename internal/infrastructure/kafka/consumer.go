package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/config"
	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/pkg/retry"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg kafkago.Message) error
}

type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Consumer drives order status transitions off the delivery tracker's event
// stream. Offsets are committed only after the handler succeeds, so a crashed
// transition is re-delivered.
type Consumer struct {
	handler MessageHandler
	reader  Reader
	logger  *zap.Logger
}

func NewConsumer(handler MessageHandler, reader Reader, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler: handler,
		reader:  reader,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if isBenignFetchTimeout(err) {
				c.logger.Debug("fetch timeout (idle), backing off", zap.Error(err))
				sleepWithContext(ctx, 10*time.Second)
				continue
			}
			// transient errors during rebalancing: wait and continue
			c.logger.Warn("FetchMessage error, backing off", zap.Error(err))
			sleepWithContext(ctx, 500*time.Millisecond)
			continue
		}

		if err := c.handler.Handle(ctx, msg); err != nil {
			c.logger.Error("handler failed; message will not be committed",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			sleepWithContext(ctx, 200*time.Millisecond)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("commit failed",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			sleepWithContext(ctx, 200*time.Millisecond)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isBenignFetchTimeout(err error) bool {
	s := err.Error()
	return strings.Contains(s, "Request Timed Out") ||
		strings.Contains(s, "no messages received from kafka within the allocated time")
}

var ErrBadEvent = errors.New("bad delivery event")

type StatusService interface {
	UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error)
}

// deliveryEvent is what the delivery tracker emits when a courier advances an
// order: out_for_delivery, delivered, cancelled.
type deliveryEvent struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// StatusHandler applies one delivery event to the order state machine.
type StatusHandler struct {
	service StatusService
	policy  config.Retry
	logger  *zap.Logger
}

func NewStatusHandler(service StatusService, policy config.Retry, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		service: service,
		policy:  policy,
		logger:  logger,
	}
}

func (h *StatusHandler) Handle(ctx context.Context, msg kafkago.Message) error {
	var ev deliveryEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.Error("bad json format",
			zap.Error(err),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
		// poison message: commit and move on
		return nil
	}
	status := domain.Status(ev.Status)
	if ev.OrderID == "" || !status.Valid() {
		h.logger.Error("invalid delivery event",
			zap.String("order_id", ev.OrderID),
			zap.String("status", ev.Status),
		)
		return nil
	}

	err := retry.Do(ctx, h.policy, 3, func() error {
		_, err := h.service.UpdateStatus(ctx, ev.OrderID, status)
		// validation failures (terminal order, stale transition) never
		// heal; retrying them only stalls the partition
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("delivery event rejected",
				zap.String("order_id", ev.OrderID),
				zap.String("status", ev.Status),
				zap.Error(err),
			)
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	h.logger.Info("delivery event applied",
		zap.String("order_id", ev.OrderID),
		zap.String("status", ev.Status),
		zap.Int64("offset", msg.Offset),
	)
	return nil
}
