package repository

import (
	"context"

	"rideshare/internal/domain"
)

// TripRepository defines the persistence operations of the trip catalog.
type TripRepository interface {
	// Create persists a newly published trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// ListByDriver retrieves the trips published by a driver, newest departure first.
	ListByDriver(ctx context.Context, driverID string) ([]*domain.Trip, error)

	// UpdateStatus changes the status of a trip.
	UpdateStatus(ctx context.Context, id string, status domain.TripStatus) error
}
