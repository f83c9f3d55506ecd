package service

import (
	"context"
	"fmt"
	"log/slog"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

// CancellationResult is the outcome of a cancel call. Released is false when
// the reservation was already terminal. RefundPending is true when a paid
// online reservation was cancelled and the refund has not settled yet.
type CancellationResult struct {
	Released      bool
	RefundPending bool
	Reservation   *domain.Reservation
}

// CancellationService handles passenger and system cancellations.
type CancellationService struct {
	reservationRepo repository.ReservationRepository
	tripRepo        repository.TripRepository
	inventory       *InventoryService
	payments        *PaymentService
	notifier        *NotificationService
	logger          *slog.Logger
}

// NewCancellationService creates a new CancellationService.
func NewCancellationService(
	reservationRepo repository.ReservationRepository,
	tripRepo repository.TripRepository,
	inventory *InventoryService,
	payments *PaymentService,
	notifier *NotificationService,
	logger *slog.Logger,
) *CancellationService {
	return &CancellationService{
		reservationRepo: reservationRepo,
		tripRepo:        tripRepo,
		inventory:       inventory,
		payments:        payments,
		notifier:        notifier,
		logger:          logger,
	}
}

// CancelRequest contains the parameters for cancelling a reservation.
type CancelRequest struct {
	ReservationID string
	Reason        string
}

// Cancel cancels a reservation on behalf of its passenger or the system.
// Repeated calls are safe: a reservation that is already terminal yields
// Released=false and no error. The seat is always released before any refund
// is attempted.
func (s *CancellationService) Cancel(ctx context.Context, actor domain.Actor, req CancelRequest) (*CancellationResult, error) {
	if req.ReservationID == "" {
		return nil, ErrInvalidReservationID
	}

	r, err := s.reservationRepo.GetByID(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}

	if !actor.IsSystem() && !actor.IsPassenger(r.Passenger.ID) {
		return nil, ErrForbidden
	}

	if r.Status.IsTerminal() {
		return &CancellationResult{Reservation: r}, nil
	}

	trip, err := s.tripRepo.GetByID(ctx, r.TripID)
	if err != nil {
		return nil, err
	}
	if trip.Status == domain.TripStatusCompleted {
		return nil, fmt.Errorf("%w: trip already completed", ErrInvalidTransition)
	}

	reason := req.Reason
	if reason == "" {
		reason = "cancelled by " + string(actor.Role)
	}

	return s.settle(ctx, ReleaseRequest{
		ReservationID: req.ReservationID,
		To:            domain.ReservationStatusCancelled,
		Apply: func(r *domain.Reservation) {
			r.CancelReason = reason
		},
	}, actor)
}

// settle releases the seat as described by req and refunds the reservation
// when it ended cancelled after an online payment. It skips authorization
// and the trip checks so trip cascades can use it.
func (s *CancellationService) settle(ctx context.Context, req ReleaseRequest, actor domain.Actor) (*CancellationResult, error) {
	released, err := s.inventory.Release(ctx, req)
	if err != nil {
		return nil, err
	}

	if !released.Released {
		// Lost a race against another terminal transition.
		return &CancellationResult{Reservation: released.Reservation}, nil
	}

	r := released.Reservation
	result := &CancellationResult{Released: true, Reservation: r}

	if r.Status != domain.ReservationStatusCancelled {
		s.logger.Info("reservation_closed",
			slog.String("reservation_id", r.ID),
			slog.String("trip_id", r.TripID),
			slog.String("status", string(r.Status)),
		)
		s.notifier.ReservationChanged(ctx, r, released.From, actor)
		return result, nil
	}

	if r.PaymentMethod == domain.PaymentMethodOnline && r.PaymentStatus == domain.PaymentStatusPaid {
		refund, err := s.payments.Refund(ctx, r.ID)
		if err != nil {
			// The seat is already free; the sweeper retries flagged refunds.
			s.logger.Error("cancel_refund_failed",
				slog.String("reservation_id", r.ID),
				slog.Any("error", err),
			)
			result.RefundPending = true
			if _, _, err := mutateReservation(ctx, s.reservationRepo, r.ID, func(r *domain.Reservation) error {
				if r.RefundPending {
					return errNoChange
				}
				r.RefundPending = true
				return nil
			}); err != nil {
				s.logger.Error("refund_flag_write_failed",
					slog.String("reservation_id", r.ID),
					slog.Any("error", err),
				)
			}
		} else {
			result.RefundPending = refund.RefundPending
		}

		if fresh, err := s.reservationRepo.GetByID(ctx, r.ID); err == nil {
			result.Reservation = fresh
		}
	}

	s.logger.Info("reservation_cancelled",
		slog.String("reservation_id", r.ID),
		slog.String("trip_id", r.TripID),
		slog.String("actor_role", string(actor.Role)),
		slog.Bool("refund_pending", result.RefundPending),
	)

	s.notifier.ReservationChanged(ctx, result.Reservation, released.From, actor)

	return result, nil
}
