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

// Decision is a driver's answer to a pending reservation.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// DecisionService handles the driver side of reservation approval.
type DecisionService struct {
	reservationRepo repository.ReservationRepository
	tripRepo        repository.TripRepository
	inventory       *InventoryService
	notifier        *NotificationService
	logger          *slog.Logger
}

// NewDecisionService creates a new DecisionService.
func NewDecisionService(
	reservationRepo repository.ReservationRepository,
	tripRepo repository.TripRepository,
	inventory *InventoryService,
	notifier *NotificationService,
	logger *slog.Logger,
) *DecisionService {
	return &DecisionService{
		reservationRepo: reservationRepo,
		tripRepo:        tripRepo,
		inventory:       inventory,
		notifier:        notifier,
		logger:          logger,
	}
}

// ListPending lists the reservations of a trip awaiting the driver's decision.
func (s *DecisionService) ListPending(ctx context.Context, actor domain.Actor, tripID string) ([]*domain.Reservation, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if !actor.IsSystem() && !actor.IsDriverOf(trip) {
		return nil, ErrForbidden
	}

	return s.reservationRepo.ListByTrip(ctx, tripID, domain.ReservationStatusPending)
}

// DecideRequest contains the parameters for a driver decision.
type DecideRequest struct {
	ReservationID string
	Decision      Decision
	Reason        string
}

// Decide accepts or rejects a pending reservation. The pending state is
// checked again when the change is written. A reject that loses to a
// concurrent cancellation is reported as success since the seat is free
// either way.
func (s *DecisionService) Decide(ctx context.Context, actor domain.Actor, req DecideRequest) (*domain.Reservation, error) {
	if req.ReservationID == "" {
		return nil, ErrInvalidReservationID
	}
	if req.Decision != DecisionAccept && req.Decision != DecisionReject {
		return nil, ErrInvalidDecision
	}

	current, err := s.reservationRepo.GetByID(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}

	trip, err := s.tripRepo.GetByID(ctx, current.TripID)
	if err != nil {
		return nil, err
	}

	if !actor.IsDriverOf(trip) {
		return nil, ErrForbidden
	}

	if req.Decision == DecisionAccept {
		return s.accept(ctx, actor, req.ReservationID)
	}
	return s.reject(ctx, actor, req)
}

func (s *DecisionService) accept(ctx context.Context, actor domain.Actor, reservationID string) (*domain.Reservation, error) {
	var from domain.ReservationStatus
	r, changed, err := mutateReservation(ctx, s.reservationRepo, reservationID, func(r *domain.Reservation) error {
		from = r.Status
		if r.Status != domain.ReservationStatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, domain.ReservationStatusAccepted)
		}

		trip, err := s.tripRepo.GetByID(ctx, r.TripID)
		if err != nil {
			return err
		}
		if !trip.IsBookable() {
			return ErrTripNotBookable
		}

		return r.TransitionTo(domain.ReservationStatusAccepted, time.Now())
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.logger.Info("decision_conflict",
				slog.String("reservation_id", reservationID),
				slog.String("decision", string(DecisionAccept)),
				slog.String("status", string(from)),
			)
		}
		return nil, err
	}

	if changed {
		s.logger.Info("reservation_accepted", slog.String("reservation_id", r.ID))
		s.notifier.ReservationChanged(ctx, r, from, actor)
	}

	return r, nil
}

func (s *DecisionService) reject(ctx context.Context, actor domain.Actor, req DecideRequest) (*domain.Reservation, error) {
	result, err := s.inventory.Release(ctx, ReleaseRequest{
		ReservationID: req.ReservationID,
		To:            domain.ReservationStatusRejected,
		From:          []domain.ReservationStatus{domain.ReservationStatusPending},
		Apply: func(r *domain.Reservation) {
			r.CancelReason = req.Reason
		},
	})
	if err != nil {
		return nil, err
	}

	if !result.Released {
		s.logger.Info("decision_conflict",
			slog.String("reservation_id", req.ReservationID),
			slog.String("decision", string(DecisionReject)),
			slog.String("status", string(result.Reservation.Status)),
		)
		return result.Reservation, nil
	}

	s.logger.Info("reservation_rejected", slog.String("reservation_id", req.ReservationID))
	s.notifier.ReservationChanged(ctx, result.Reservation, result.From, actor)

	return result.Reservation, nil
}
