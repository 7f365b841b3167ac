// Package orchestrator coordinates the checkout saga: durable order creation
// followed by best-effort cart clear and notification fan-out. The order row
// is the single source of truth; failures that threaten it are loud, failures
// in side effects degrade the result instead of failing it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/domain"
	"github.com/freshcart/order-engine/internal/infrastructure/kafka"
	"github.com/freshcart/order-engine/internal/observability"
	"github.com/freshcart/order-engine/internal/pkg/keyed"
)

//go:generate mockgen -source internal/orchestrator/orchestrator.go -destination=internal/orchestrator/orchestrator_mock_test.go -package=orchestrator

// Free delivery kicks in at this subtotal; below it the flat fee applies.
const (
	freeDeliveryAbove = 199.0
	deliveryFee       = 20.0

	deliveryEstimate = 30 * time.Minute

	// budget for post-persist bookkeeping once the caller's deadline is gone
	detachedTimeout = 5 * time.Second
)

type CartGateway interface {
	GetCart(ctx context.Context, userID string) (*domain.CartSnapshot, error)
	Invalidate(userID string)
}

type CartClearer interface {
	Clear(ctx context.Context, userID, idemKey string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.NotificationRequest) []domain.NotificationAttempt
}

type EventPublisher interface {
	PublishStatus(ev kafka.StatusEvent)
}

type CheckoutRequest struct {
	UserID          string
	DeliveryAddress string
	IdempotencyKey  string
}

type SideEffect string

const (
	SideEffectOK      SideEffect = "ok"
	SideEffectFailed  SideEffect = "failed"
	SideEffectSkipped SideEffect = "skipped"
)

// CheckoutResult carries the persisted order plus the advisory outcome of
// each side effect. Degraded results are still successes: the order exists.
type CheckoutResult struct {
	Order         *domain.Order
	CartClear     SideEffect
	Notifications []domain.NotificationAttempt
}

// Degraded reports whether a side effect is still outstanding and needs
// out-of-band reconciliation.
func (r *CheckoutResult) Degraded() bool {
	return r.CartClear == SideEffectFailed
}

type Orchestrator struct {
	carts      CartGateway
	clearer    CartClearer
	orders     domain.OrderRepository
	dispatcher Dispatcher
	events     EventPublisher
	locks      *keyed.Mutex
	budget     time.Duration
	logger     *zap.Logger
	metrics    observability.Metrics
}

func New(
	carts CartGateway,
	clearer CartClearer,
	orders domain.OrderRepository,
	dispatcher Dispatcher,
	events EventPublisher,
	dispatchBudget time.Duration,
	logger *zap.Logger,
	metrics observability.Metrics,
) *Orchestrator {
	if dispatchBudget <= 0 {
		dispatchBudget = 3 * time.Second
	}
	return &Orchestrator{
		carts:      carts,
		clearer:    clearer,
		orders:     orders,
		dispatcher: dispatcher,
		events:     events,
		locks:      keyed.NewMutex(),
		budget:     dispatchBudget,
		logger:     logger,
		metrics:    metrics,
	}
}

// Checkout runs the saga. The order persist is the durability boundary: from
// that point on nothing rolls the order back, not cart store outages and not
// caller-side cancellation. Side-effect failures surface as advisory fields
// on the result.
func (o *Orchestrator) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	start := time.Now()
	res, err := o.checkout(ctx, req)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Degraded():
		outcome = "degraded"
	}
	o.metrics.ObserveCheckout(outcome, float64(time.Since(start).Microseconds())/1000.0)
	return res, err
}

func (o *Orchestrator) checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	// serialize per user so two concurrent checkouts cannot double-spend the
	// same cart; unrelated users proceed in parallel
	unlock := o.locks.Lock(req.UserID)
	defer unlock()

	snap, err := o.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if snap.Empty() {
		return nil, domain.ErrEmptyCart
	}
	order, err := buildOrder(req, snap)
	if err != nil {
		return nil, err
	}

	if err := o.orders.Create(ctx, order); err != nil {
		if errors.Is(err, domain.ErrDuplicateCheckout) {
			return o.resumeDuplicate(ctx, req)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	o.logger.Info("order persisted",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Float64("total", order.TotalAmount),
	)

	result := &CheckoutResult{Order: order, CartClear: SideEffectOK}

	// the entry must be gone before the authoritative clear, never after
	o.carts.Invalidate(req.UserID)

	clearErr := o.clearer.Clear(ctx, req.UserID, clearKey(req.UserID, order.ID))
	if clearErr != nil {
		// the order is NOT rolled back; reconciliation retries the clear
		// out of band
		result.CartClear = SideEffectFailed
		o.logger.Warn("cart clear outstanding",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.Error(clearErr),
		)
	} else {
		o.advance(order, domain.StatusConfirmed)
	}
	o.advance(order, domain.StatusActive)

	// status writes survive caller cancellation: a placed order is never
	// left dangling because the client went away mid-saga
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()
	if err := o.orders.UpdateStatus(persistCtx, order.ID, domain.StatusActive); err != nil {
		o.logger.Error("status update failed",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	o.events.PublishStatus(kafka.StatusEvent{
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  order.Status,
		At:      time.Now().UTC(),
	})

	result.Notifications = o.notify(ctx, order, domain.EventOrderCreated)
	return result, nil
}

// resumeDuplicate handles an idempotency-key replay: the order already
// exists, so return it, re-issue the (idempotent) cart clear, and skip
// notifications to avoid spamming the user twice.
func (o *Orchestrator) resumeDuplicate(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	order, err := o.orders.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup replayed checkout: %v", domain.ErrPersistence, err)
	}
	o.logger.Info("checkout replayed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
	)

	result := &CheckoutResult{
		Order:         order,
		CartClear:     SideEffectOK,
		Notifications: []domain.NotificationAttempt{},
	}
	o.carts.Invalidate(req.UserID)
	if err := o.clearer.Clear(ctx, req.UserID, clearKey(req.UserID, order.ID)); err != nil {
		result.CartClear = SideEffectFailed
	}
	return result, nil
}

// UpdateStatus applies an externally driven transition (delivery tracker,
// admin cancellation), publishes the status event and notifies the user.
func (o *Orchestrator) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	if err := o.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	order, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	o.events.PublishStatus(kafka.StatusEvent{
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  order.Status,
		At:      time.Now().UTC(),
	})
	o.notify(ctx, order, eventFor(status))

	o.logger.Info("order status updated",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return o.orders.GetByID(ctx, orderID)
}

// notify fans out within a bounded budget. The context is detached so an
// already-expired caller deadline does not suppress the attempt set; the
// budget alone bounds the wait.
func (o *Orchestrator) notify(ctx context.Context, order *domain.Order, event domain.EventType) []domain.NotificationAttempt {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.budget)
	defer cancel()

	return o.dispatcher.Dispatch(notifyCtx, domain.NotificationRequest{
		OrderID:     order.ID,
		RecipientID: order.UserID,
		Event:       event,
		Payload: map[string]string{
			"order_id": order.ID,
			"status":   string(order.Status),
			"total":    strconv.FormatFloat(order.TotalAmount, 'f', 2, 64),
			"address":  order.DeliveryAddress,
		},
	})
}

func (o *Orchestrator) advance(order *domain.Order, to domain.Status) {
	if err := order.Advance(to); err != nil {
		// all in-saga transitions are legal by construction
		o.logger.Error("unexpected transition rejection",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func validateRequest(req CheckoutRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if req.DeliveryAddress == "" {
		return fmt.Errorf("%w: delivery address is required", domain.ErrValidation)
	}
	return nil
}

// buildOrder validates the snapshot and freezes prices into order items. The
// total is recomputed here from the snapshot's unit prices; catalog changes
// after this point never touch the order.
func buildOrder(req CheckoutRequest, snap *domain.CartSnapshot) (*domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(snap.Items))
	for _, ci := range snap.Items {
		if ci.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s has quantity %d", domain.ErrValidation, ci.ProductID, ci.Quantity)
		}
		if ci.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: product %s has negative price", domain.ErrValidation, ci.ProductID)
		}
		items = append(items, domain.OrderItem{
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			UnitPrice: ci.UnitPrice,
		})
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Items:             items,
		Status:            domain.StatusCreated,
		DeliveryAddress:   req.DeliveryAddress,
		IdempotencyKey:    req.IdempotencyKey,
		EstimatedDelivery: now.Add(deliveryEstimate),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	order.TotalAmount = order.Subtotal()
	if order.TotalAmount < freeDeliveryAbove {
		order.DeliveryFee = deliveryFee
	}
	if err := order.Advance(domain.StatusPending); err != nil {
		return nil, err
	}
	return order, nil
}

func clearKey(userID, orderID string) string {
	return userID + ":" + orderID
}

func eventFor(status domain.Status) domain.EventType {
	switch status {
	case domain.StatusOutForDelivery:
		return domain.EventOutForDelivery
	case domain.StatusDelivered:
		return domain.EventDelivered
	default:
		return domain.EventStatusChanged
	}
}
