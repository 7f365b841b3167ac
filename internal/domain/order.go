package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusCreated        Status = "created"
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusActive         Status = "active"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// transitions encodes the order lifecycle. pending -> active directly is the
// degraded path: the order was persisted but cart-clear is still outstanding.
var transitions = map[Status][]Status{
	StatusCreated:        {StatusPending},
	StatusPending:        {StatusConfirmed, StatusActive, StatusCancelled},
	StatusConfirmed:      {StatusActive, StatusCancelled},
	StatusActive:         {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPending, StatusConfirmed, StatusActive,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	// UnitPrice is the price snapshot taken at order time. It is never
	// re-read from the catalog afterwards.
	UnitPrice float64 `json:"unit_price"`
}

func (i OrderItem) Subtotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

type Order struct {
	ID                string      `json:"order_id"`
	UserID            string      `json:"user_id"`
	Items             []OrderItem `json:"items"`
	Status            Status      `json:"status"`
	TotalAmount       float64     `json:"total_amount"`
	DeliveryFee       float64     `json:"delivery_fee"`
	DeliveryAddress   string      `json:"delivery_address"`
	IdempotencyKey    string      `json:"-"`
	EstimatedDelivery time.Time   `json:"estimated_delivery"`
	DeliveredAt       *time.Time  `json:"delivered_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Advance moves the order to the next status, rejecting transitions the
// lifecycle does not allow. Terminal orders are immutable.
func (o *Order) Advance(to Status) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: order %s is %s", ErrValidation, o.ID, o.Status)
	}
	if !o.Status.CanTransition(to) {
		return fmt.Errorf("%w: transition %s -> %s", ErrValidation, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	if to == StatusDelivered {
		t := o.UpdatedAt
		o.DeliveredAt = &t
	}
	return nil
}

func (o *Order) Subtotal() float64 {
	var sum float64
	for _, it := range o.Items {
		sum += it.Subtotal()
	}
	return sum
}
