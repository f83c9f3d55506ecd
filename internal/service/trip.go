package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rideshare/internal/domain"
	"rideshare/internal/redis"
	"rideshare/internal/repository"
)

// TripCatalog reads trips through the Redis cache. A nil cache reads the
// repository directly.
type TripCatalog struct {
	tripRepo repository.TripRepository
	cache    redis.CacheStoreInterface
	logger   *slog.Logger
}

// NewTripCatalog creates a new TripCatalog.
func NewTripCatalog(tripRepo repository.TripRepository, cache redis.CacheStoreInterface, logger *slog.Logger) *TripCatalog {
	return &TripCatalog{
		tripRepo: tripRepo,
		cache:    cache,
		logger:   logger,
	}
}

// GetTrip retrieves a trip by ID.
func (c *TripCatalog) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	if c.cache != nil {
		trip, err := c.cache.GetTrip(ctx, tripID)
		if err != nil {
			c.logger.Warn("trip_cache_read_failed", slog.String("trip_id", tripID), slog.Any("error", err))
		} else if trip != nil {
			return trip, nil
		}
	}

	trip, err := c.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetTrip(ctx, trip); err != nil {
			c.logger.Warn("trip_cache_write_failed", slog.String("trip_id", tripID), slog.Any("error", err))
		}
	}

	return trip, nil
}

// Invalidate drops a trip from the cache.
func (c *TripCatalog) Invalidate(ctx context.Context, tripID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InvalidateTrip(ctx, tripID); err != nil {
		c.logger.Warn("trip_cache_invalidate_failed", slog.String("trip_id", tripID), slog.Any("error", err))
	}
}

// TripService handles the driver side of the trip catalog and the
// reservation cascade that follows a trip status change.
type TripService struct {
	tripRepo        repository.TripRepository
	reservationRepo repository.ReservationRepository
	catalog         *TripCatalog
	inventory       *InventoryService
	cancellation    *CancellationService
	notifier        *NotificationService
	logger          *slog.Logger
}

// NewTripService creates a new TripService.
func NewTripService(
	tripRepo repository.TripRepository,
	reservationRepo repository.ReservationRepository,
	catalog *TripCatalog,
	inventory *InventoryService,
	cancellation *CancellationService,
	notifier *NotificationService,
	logger *slog.Logger,
) *TripService {
	return &TripService{
		tripRepo:        tripRepo,
		reservationRepo: reservationRepo,
		catalog:         catalog,
		inventory:       inventory,
		cancellation:    cancellation,
		notifier:        notifier,
		logger:          logger,
	}
}

// PublishTripRequest contains the parameters for publishing a trip.
type PublishTripRequest struct {
	Departure    string
	Arrival      string
	DepartureAt  time.Time
	ArrivalAt    time.Time
	PricePerSeat float64
	Capacity     int
}

// PublishTrip creates a new active trip owned by the calling driver.
func (s *TripService) PublishTrip(ctx context.Context, actor domain.Actor, req PublishTripRequest) (*domain.Trip, error) {
	if actor.Role != domain.RoleDriver || actor.UserID == "" {
		return nil, ErrForbidden
	}

	req.Departure = strings.TrimSpace(req.Departure)
	req.Arrival = strings.TrimSpace(req.Arrival)
	if req.Departure == "" || req.Arrival == "" || req.DepartureAt.IsZero() ||
		req.Capacity < 0 || req.PricePerSeat < 0 {
		return nil, ErrInvalidTrip
	}
	if !req.ArrivalAt.IsZero() && req.ArrivalAt.Before(req.DepartureAt) {
		return nil, ErrInvalidTrip
	}

	trip := &domain.Trip{
		ID:           uuid.New().String(),
		DriverID:     actor.UserID,
		Departure:    req.Departure,
		Arrival:      req.Arrival,
		DepartureAt:  req.DepartureAt,
		ArrivalAt:    req.ArrivalAt,
		PricePerSeat: req.PricePerSeat,
		Capacity:     req.Capacity,
		Status:       domain.TripStatusActive,
		CreatedAt:    time.Now(),
	}

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, err
	}

	s.logger.Info("trip_published",
		slog.String("trip_id", trip.ID),
		slog.String("driver_id", trip.DriverID),
		slog.Int("capacity", trip.Capacity),
	)

	return trip, nil
}

// GetTrip retrieves a trip by ID.
func (s *TripService) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	return s.catalog.GetTrip(ctx, tripID)
}

// TripAvailability is a trip together with its free seat count.
type TripAvailability struct {
	Trip           *domain.Trip
	SeatsRemaining int
}

// GetAvailability returns the trip and how many seats can still be booked.
func (s *TripService) GetAvailability(ctx context.Context, tripID string) (*TripAvailability, error) {
	trip, err := s.catalog.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.inventory.SeatsRemaining(ctx, tripID)
	if err != nil {
		return nil, err
	}

	return &TripAvailability{Trip: trip, SeatsRemaining: remaining}, nil
}

// ListTripsByDriver lists the trips published by the calling driver.
func (s *TripService) ListTripsByDriver(ctx context.Context, actor domain.Actor) ([]*domain.Trip, error) {
	if actor.Role != domain.RoleDriver || actor.UserID == "" {
		return nil, ErrForbidden
	}
	return s.tripRepo.ListByDriver(ctx, actor.UserID)
}

// TripStatusResult reports a trip status change and its effect on the
// trip's reservations.
type TripStatusResult struct {
	Trip      *domain.Trip
	Completed int
	Cancelled int
}

// MarkTripStatus closes an active trip as completed or cancelled. Accepted
// reservations of a completed trip are completed; every other seat holder is
// cancelled by the system and refunded where it was paid online.
func (s *TripService) MarkTripStatus(ctx context.Context, actor domain.Actor, tripID string, status domain.TripStatus) (*TripStatusResult, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	if status != domain.TripStatusCompleted && status != domain.TripStatusCancelled {
		return nil, ErrInvalidTripStatus
	}

	var trip *domain.Trip
	err := s.inventory.WithTripLock(ctx, tripID, func() error {
		var err error
		trip, err = s.tripRepo.GetByID(ctx, tripID)
		if err != nil {
			return err
		}
		if !actor.IsSystem() && !actor.IsDriverOf(trip) {
			return ErrForbidden
		}
		if trip.Status != domain.TripStatusActive {
			return fmt.Errorf("%w: trip is %s", ErrInvalidTransition, trip.Status)
		}
		if err := s.tripRepo.UpdateStatus(ctx, tripID, status); err != nil {
			return err
		}
		trip.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.catalog.Invalidate(ctx, tripID)

	s.logger.Info("trip_status_changed",
		slog.String("trip_id", tripID),
		slog.String("status", string(status)),
		slog.String("actor_role", string(actor.Role)),
	)

	// New holds are refused from here on, so the holder list is final.
	holders, err := s.reservationRepo.ListByTrip(ctx, tripID, domain.HeldStatuses...)
	if err != nil {
		return nil, err
	}

	result := &TripStatusResult{Trip: trip}
	for _, r := range holders {
		closed, err := s.cancellation.settle(ctx, closeRequest(r.ID, status), domain.SystemActor())
		if err != nil {
			return nil, err
		}
		if !closed.Released {
			continue
		}
		if closed.Reservation.Status == domain.ReservationStatusCompleted {
			result.Completed++
		} else {
			result.Cancelled++
		}
	}

	return result, nil
}

// closeRequest builds the release for one seat holder of a closing trip. On a
// completed trip the target follows the status at write time, so a
// reservation accepted after the holder list was read is still completed.
func closeRequest(reservationID string, status domain.TripStatus) ReleaseRequest {
	if status == domain.TripStatusCancelled {
		return ReleaseRequest{
			ReservationID: reservationID,
			To:            domain.ReservationStatusCancelled,
			Apply:         func(r *domain.Reservation) { r.CancelReason = "trip cancelled" },
		}
	}

	return ReleaseRequest{
		ReservationID: reservationID,
		Route: func(r *domain.Reservation) domain.ReservationStatus {
			if r.Status == domain.ReservationStatusAccepted {
				return domain.ReservationStatusCompleted
			}
			return domain.ReservationStatusCancelled
		},
		Apply: func(r *domain.Reservation) {
			switch {
			case r.Status == domain.ReservationStatusCancelled:
				r.CancelReason = "trip completed"
			case r.PaymentMethod == domain.PaymentMethodCash:
				// Cash counts as settled once the trip is done.
				r.PaymentStatus = domain.PaymentStatusPaid
			}
		},
	}
}
