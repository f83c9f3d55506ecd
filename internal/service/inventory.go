package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

// InventoryService tracks seat occupancy per trip. Occupancy is the number of
// seat-holding reservations in the ledger; no counter is stored.
type InventoryService struct {
	tripRepo        repository.TripRepository
	reservationRepo repository.ReservationRepository
	locker          TripLocker
	logger          *slog.Logger
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(
	tripRepo repository.TripRepository,
	reservationRepo repository.ReservationRepository,
	locker TripLocker,
	logger *slog.Logger,
) *InventoryService {
	return &InventoryService{
		tripRepo:        tripRepo,
		reservationRepo: reservationRepo,
		locker:          locker,
		logger:          logger,
	}
}

// Reserve persists r as a seat hold on its trip. The trip is re-read under
// the trip lock so a concurrent status change is always observed.
func (s *InventoryService) Reserve(ctx context.Context, r *domain.Reservation) (*domain.Trip, error) {
	unlock, err := s.locker.Lock(ctx, r.TripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	trip, err := s.tripRepo.GetByID(ctx, r.TripID)
	if err != nil {
		return nil, err
	}

	if !trip.IsBookable() {
		return nil, ErrTripNotBookable
	}

	if err := s.reservationRepo.CreateHeld(ctx, r, trip.Capacity); err != nil {
		if errors.Is(err, repository.ErrCapacityReached) {
			return nil, ErrNoSeatsAvailable
		}
		return nil, fmt.Errorf("create seat hold: %w", err)
	}

	s.logger.Info("seat_held",
		slog.String("trip_id", r.TripID),
		slog.String("reservation_id", r.ID),
		slog.String("status", string(r.Status)),
	)

	return trip, nil
}

// ReleaseRequest describes a move of a seat-holding reservation to a
// non-holding state.
type ReleaseRequest struct {
	ReservationID string
	To            domain.ReservationStatus
	// From, when set, restricts the release to reservations currently in
	// one of these states. A holding reservation in any other state yields
	// ErrInvalidTransition.
	From []domain.ReservationStatus
	// Route, when set, picks the target from the reservation as read under
	// the lock and overrides To.
	Route func(r *domain.Reservation) domain.ReservationStatus
	// Apply runs on the reservation after the status change and before it
	// is written, e.g. to record a reason or payment status.
	Apply func(r *domain.Reservation)
}

// ReleaseResult reports the outcome of a release.
type ReleaseResult struct {
	// Released is true only for the call that actually freed the seat.
	Released    bool
	From        domain.ReservationStatus
	Reservation *domain.Reservation
}

// Release frees the seat held by a reservation exactly once. Releasing a
// reservation that holds no seat returns Released=false and no error.
func (s *InventoryService) Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error) {
	if req.Route == nil && req.To.HoldsSeat() {
		return nil, fmt.Errorf("%w: release target %s holds a seat", ErrInvalidTransition, req.To)
	}

	current, err := s.reservationRepo.GetByID(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, current.TripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var from domain.ReservationStatus
	r, changed, err := mutateReservation(ctx, s.reservationRepo, req.ReservationID, func(r *domain.Reservation) error {
		from = r.Status
		if !r.Status.HoldsSeat() {
			return errNoChange
		}
		to := req.To
		if req.Route != nil {
			to = req.Route(r)
		}
		if to.HoldsSeat() {
			return fmt.Errorf("%w: release target %s holds a seat", ErrInvalidTransition, to)
		}
		if len(req.From) > 0 && !containsStatus(req.From, r.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
		}
		if err := r.TransitionTo(to, time.Now()); err != nil {
			return err
		}
		if req.Apply != nil {
			req.Apply(r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("seat_released",
			slog.String("trip_id", r.TripID),
			slog.String("reservation_id", r.ID),
			slog.String("from", string(from)),
			slog.String("to", string(r.Status)),
		)
	}

	return &ReleaseResult{Released: changed, From: from, Reservation: r}, nil
}

// SeatsRemaining returns capacity minus held seats, never below zero.
func (s *InventoryService) SeatsRemaining(ctx context.Context, tripID string) (int, error) {
	if tripID == "" {
		return 0, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return 0, err
	}

	held, err := s.reservationRepo.CountHeld(ctx, tripID)
	if err != nil {
		return 0, err
	}

	return max(trip.Capacity-held, 0), nil
}

// WithTripLock runs fn while holding the seat lock of tripID.
func (s *InventoryService) WithTripLock(ctx context.Context, tripID string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, tripID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func containsStatus(list []domain.ReservationStatus, s domain.ReservationStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
