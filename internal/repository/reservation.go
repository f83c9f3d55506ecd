package repository

import (
	"context"
	"time"

	"rideshare/internal/domain"
)

// ReservationRepository is the reservation ledger. Seat occupancy is never
// stored; it is always derived from the statuses kept here.
type ReservationRepository interface {
	// CreateHeld inserts a seat-holding reservation only if the trip has
	// fewer than capacity held reservations. The check and the insert are
	// atomic with respect to other CreateHeld calls for the same trip.
	// Returns ErrCapacityReached when the trip is full.
	CreateHeld(ctx context.Context, reservation *domain.Reservation, capacity int) error

	// GetByID retrieves a reservation by ID.
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)

	// Update persists the reservation if its stored version still equals
	// reservation.Version, then increments reservation.Version.
	// Returns ErrVersionConflict if another writer got there first.
	Update(ctx context.Context, reservation *domain.Reservation) error

	// CountHeld returns the number of seat-holding reservations for a trip.
	CountHeld(ctx context.Context, tripID string) (int, error)

	// ListByTrip retrieves the reservations of a trip, optionally filtered by status.
	ListByTrip(ctx context.Context, tripID string, statuses ...domain.ReservationStatus) ([]*domain.Reservation, error)

	// ListByPassenger retrieves a passenger's reservations, optionally filtered by status.
	ListByPassenger(ctx context.Context, passengerID string, statuses ...domain.ReservationStatus) ([]*domain.Reservation, error)

	// ListExpiredAwaitingPayment retrieves online checkouts whose payment
	// deadline passed before the given time.
	ListExpiredAwaitingPayment(ctx context.Context, before time.Time, limit int) ([]*domain.Reservation, error)

	// ListRefundsToRetry retrieves refund-pending reservations whose refund
	// was never accepted by the provider. Refunds the provider is settling
	// asynchronously are left out.
	ListRefundsToRetry(ctx context.Context, limit int) ([]*domain.Reservation, error)
}
