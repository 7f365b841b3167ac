package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcart/order-engine/internal/domain"
)

// NotificationRepository persists in-app notifications. Rows are what the
// user-facing feed reads; delivery over push/email happens elsewhere.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) SaveInApp(ctx context.Context, req domain.NotificationRequest) error {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders.inapp_notification (user_id, order_id, event_type, payload, created_at)
		VALUES ($1,$2,$3,$4, now())
		`, req.RecipientID, req.OrderID, string(req.Event), payload)
	return err
}
