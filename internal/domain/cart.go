package domain

type CartItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"price"`
}

// CartSnapshot is the cart state read at the moment of order creation. It is
// owned by the checkout call and never persisted past it.
type CartSnapshot struct {
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}

func (s *CartSnapshot) Empty() bool {
	return s == nil || len(s.Items) == 0
}

func (s *CartSnapshot) Subtotal() float64 {
	var sum float64
	for _, it := range s.Items {
		sum += it.UnitPrice * float64(it.Quantity)
	}
	return sum
}
