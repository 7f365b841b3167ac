package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/observability"
)

// Routes maps each event type to the channel subset it fans out to. A request
// may override this with an explicit channel set.
type Routes map[domain.EventType][]domain.Channel

func DefaultRoutes() Routes {
	return Routes{
		domain.EventOrderCreated:   {domain.ChannelPush, domain.ChannelEmail, domain.ChannelInApp},
		domain.EventStatusChanged:  {domain.ChannelInApp},
		domain.EventOutForDelivery: {domain.ChannelPush, domain.ChannelInApp},
		domain.EventDelivered:      {domain.ChannelEmail, domain.ChannelInApp},
	}
}

type Dispatcher struct {
	senders map[domain.Channel]Sender
	routes  Routes
	logger  *zap.Logger
	metrics observability.Metrics
}

func NewDispatcher(senders []Sender, routes Routes, logger *zap.Logger, metrics observability.Metrics) *Dispatcher {
	byChannel := make(map[domain.Channel]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Dispatcher{
		senders: byChannel,
		routes:  routes,
		logger:  logger,
		metrics: metrics,
	}
}

// Dispatch fans the request out to every routed channel concurrently and
// waits for all of them (or their bounded timeouts). A failing channel yields
// a failed attempt in the result, never an error: the attempt set is the
// whole story and the caller decides what, if anything, is consequential.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.NotificationRequest) []domain.NotificationAttempt {
	channels := req.Channels
	if len(channels) == 0 {
		channels = d.routes[req.Event]
	}

	attempts := make([]domain.NotificationAttempt, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		sender, ok := d.senders[ch]
		if !ok {
			attempts[i] = domain.NotificationAttempt{
				Channel: ch,
				Outcome: domain.AttemptSkipped,
				At:      time.Now().UTC(),
				Reason:  "no sender configured",
			}
			continue
		}

		wg.Add(1)
		go func(i int, ch domain.Channel, sender Sender) {
			defer wg.Done()
			start := time.Now()
			err := sender.Send(ctx, req)
			durMs := float64(time.Since(start).Microseconds()) / 1000.0

			attempt := domain.NotificationAttempt{
				Channel: ch,
				Outcome: domain.AttemptSent,
				At:      time.Now().UTC(),
			}
			if err != nil {
				attempt.Outcome = domain.AttemptFailed
				attempt.Reason = err.Error()
				d.logger.Warn("notification channel failed",
					zap.String("channel", string(ch)),
					zap.String("order_id", req.OrderID),
					zap.String("event", string(req.Event)),
					zap.Error(err),
				)
			}
			d.metrics.ObserveDispatch(string(ch), string(attempt.Outcome), durMs)
			attempts[i] = attempt
		}(i, ch, sender)
	}
	wg.Wait()

	return attempts
}
