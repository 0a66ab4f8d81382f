package services

import "errors"

var (
	// ErrInvalidReference signals an unknown ticket class, order, payment or
	// promo id. Client error, not retryable.
	ErrInvalidReference = errors.New("referenced record not found")

	// ErrInvalidPromotion signals a promo code that is inactive, outside its
	// validity window, or past its usage limit.
	ErrInvalidPromotion = errors.New("promo code is not available")

	// ErrQuantityOutOfRange signals a line item quantity outside the ticket
	// class's min/max purchase bounds.
	ErrQuantityOutOfRange = errors.New("quantity outside purchase limits")

	// ErrAlreadyFinalized signals that an outcome transition found the order
	// already in a terminal state. Callers log and no-op; duplicate webhook
	// deliveries and reaper races both land here.
	ErrAlreadyFinalized = errors.New("order already in a terminal state")

	// ErrPaymentNotCompleted signals a refund attempt against a payment that
	// is not in the paid state.
	ErrPaymentNotCompleted = errors.New("payment is not completed")
)
