package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcart/order-engine/internal/domain"
)

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its items in one transaction. This write is
// the checkout's durability boundary: once committed, the order exists no
// matter what the downstream side effects do. A unique-violation on the
// idempotency key maps to ErrDuplicateCheckout.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders."order" (order_id, user_id, status, total_amount, delivery_fee,
			delivery_address, idempotency_key, estimated_delivery, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, o.ID, o.UserID, string(o.Status), o.TotalAmount, o.DeliveryFee,
		o.DeliveryAddress, o.IdempotencyKey, o.EstimatedDelivery, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateCheckout
		}
		return err
	}

	for _, it := range o.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders.order_item (order_id, product_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4)
			`, o.ID, it.ProductID, it.Quantity, it.UnitPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.get(ctx, `WHERE o.order_id = $1`, orderID)
}

func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error) {
	return r.get(ctx, `WHERE o.user_id = $1 AND o.idempotency_key = $2`, userID, key)
}

func (r *OrderRepository) get(ctx context.Context, where string, args ...any) (*domain.Order, error) {
	var o domain.Order
	var status string
	row := r.pool.QueryRow(ctx, `
		SELECT o.order_id, o.user_id, o.status, o.total_amount, o.delivery_fee,
			o.delivery_address, o.idempotency_key, o.estimated_delivery,
			o.delivered_at, o.created_at, o.updated_at
		FROM orders."order" o `+where,
		args...,
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.TotalAmount, &o.DeliveryFee,
		&o.DeliveryAddress, &o.IdempotencyKey, &o.EstimatedDelivery,
		&o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity, unit_price
		FROM orders.order_item WHERE order_id = $1
		ORDER BY id`,
		o.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateStatus moves the order to the given status, re-validating the
// transition inside the transaction so concurrent updaters cannot skip the
// state machine.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.Status) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM orders."order" WHERE order_id = $1 FOR UPDATE`,
		orderID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	cur := domain.Status(current)
	if cur.Terminal() {
		return fmt.Errorf("%w: order %s is %s", domain.ErrValidation, orderID, cur)
	}
	if !cur.CanTransition(status) {
		return fmt.Errorf("%w: transition %s -> %s", domain.ErrValidation, cur, status)
	}

	if status == domain.StatusDelivered {
		_, err = tx.Exec(ctx, `
			UPDATE orders."order"
			SET status = $2, delivered_at = now(), updated_at = now()
			WHERE order_id = $1`,
			orderID, string(status))
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE orders."order"
			SET status = $2, updated_at = now()
			WHERE order_id = $1`,
			orderID, string(status))
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
