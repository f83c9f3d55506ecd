package repository

import (
	"context"

	"rideshare/internal/domain"
)

// PaymentRepository defines the persistence operations for payment intents.
type PaymentRepository interface {
	// Create persists a new payment record.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByIdempotencyKey retrieves a payment by its idempotency key.
	// Returns nil if no payment exists with the given key.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)

	// GetByIntentID retrieves a payment by the provider's intent ID.
	GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error)

	// GetByReservationID retrieves the payment of a reservation.
	// Returns nil if the reservation never created an intent.
	GetByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error)

	// Update persists status, refund and failure fields of a payment.
	Update(ctx context.Context, payment *domain.Payment) error
}
