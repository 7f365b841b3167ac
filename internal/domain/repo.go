package domain

import (
	"context"
)

type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	UpdateStatus(ctx context.Context, orderID string, status Status) error
}

type NotificationStore interface {
	SaveInApp(ctx context.Context, req NotificationRequest) error
}
