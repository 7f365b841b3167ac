package domain

import "errors"

var (
	// ErrValidation covers bad input and illegal status transitions. Never
	// retried, reported straight back to the caller.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyCart means checkout was requested with nothing in the cart.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrPersistence means the order write itself failed. The checkout did
	// not happen and the caller must retry the whole request.
	ErrPersistence = errors.New("order persistence failed")

	// ErrNotFound is returned by repositories for missing orders.
	ErrNotFound = errors.New("order not found")

	// ErrDuplicateCheckout is raised on an idempotency-key collision: the
	// same checkout was already committed.
	ErrDuplicateCheckout = errors.New("checkout already processed")
)
