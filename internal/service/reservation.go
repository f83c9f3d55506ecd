package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

// ReservationService handles the passenger side of booking.
type ReservationService struct {
	reservationRepo repository.ReservationRepository
	catalog         *TripCatalog
	inventory       *InventoryService
	payments        *PaymentService
	notifier        *NotificationService
	paymentTimeout  time.Duration
	logger          *slog.Logger
}

// NewReservationService creates a new ReservationService. paymentTimeout
// bounds how long an online checkout may hold a seat.
func NewReservationService(
	reservationRepo repository.ReservationRepository,
	catalog *TripCatalog,
	inventory *InventoryService,
	payments *PaymentService,
	notifier *NotificationService,
	paymentTimeout time.Duration,
	logger *slog.Logger,
) *ReservationService {
	return &ReservationService{
		reservationRepo: reservationRepo,
		catalog:         catalog,
		inventory:       inventory,
		payments:        payments,
		notifier:        notifier,
		paymentTimeout:  paymentTimeout,
		logger:          logger,
	}
}

// CreateReservationRequest contains the parameters for booking a seat.
type CreateReservationRequest struct {
	TripID        string
	Passenger     domain.Passenger
	PaymentMethod domain.PaymentMethod
}

// CreateReservationResult is a new reservation and, for online payment, the
// client secret that completes the checkout.
type CreateReservationResult struct {
	Reservation  *domain.Reservation
	ClientSecret string
}

// CreateReservation books one seat for the calling passenger. The seat is
// held before any payment call. When the payment provider stays unreachable
// the result is returned together with ErrPaymentProviderUnavailable and the
// reservation keeps its seat until the checkout times out.
func (s *ReservationService) CreateReservation(ctx context.Context, actor domain.Actor, req CreateReservationRequest) (*CreateReservationResult, error) {
	if actor.Role != domain.RolePassenger || actor.UserID == "" {
		return nil, ErrForbidden
	}
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	passenger := domain.Passenger{
		ID:      actor.UserID,
		Name:    strings.TrimSpace(req.Passenger.Name),
		Phone:   strings.TrimSpace(req.Passenger.Phone),
		Address: strings.TrimSpace(req.Passenger.Address),
	}
	if passenger.Name == "" || passenger.Phone == "" {
		return nil, ErrInvalidPassenger
	}

	now := time.Now()
	r := &domain.Reservation{
		ID:            uuid.New().String(),
		TripID:        req.TripID,
		Passenger:     passenger,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Status:        domain.InitialStatus(req.PaymentMethod),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.PaymentMethod == domain.PaymentMethodOnline {
		r.PaymentDeadline = now.Add(s.paymentTimeout)
	}

	trip, err := s.inventory.Reserve(ctx, r)
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation_created",
		slog.String("reservation_id", r.ID),
		slog.String("trip_id", r.TripID),
		slog.String("passenger_id", passenger.ID),
		slog.String("payment_method", string(r.PaymentMethod)),
	)
	s.notifier.ReservationChanged(ctx, r, "", actor)

	result := &CreateReservationResult{Reservation: r}
	if r.PaymentMethod == domain.PaymentMethodCash {
		return result, nil
	}

	intent, err := s.payments.CreateIntent(ctx, r, trip.PricePerSeat)
	if err != nil {
		if errors.Is(err, ErrPaymentFailed) {
			return nil, err
		}
		return result, err
	}

	result.ClientSecret = intent.ClientSecret
	if fresh, err := s.reservationRepo.GetByID(ctx, r.ID); err == nil {
		result.Reservation = fresh
	}

	return result, nil
}

// RetryPaymentIntent reopens the checkout of an online reservation whose
// intent could not be created earlier. An existing intent is returned as is.
func (s *ReservationService) RetryPaymentIntent(ctx context.Context, actor domain.Actor, reservationID string) (*CreateReservationResult, error) {
	r, err := s.GetReservation(ctx, actor, reservationID)
	if err != nil {
		return nil, err
	}
	if !actor.IsPassenger(r.Passenger.ID) {
		return nil, ErrForbidden
	}
	if r.Status != domain.ReservationStatusAwaitingPayment {
		return nil, ErrInvalidTransition
	}

	trip, err := s.catalog.GetTrip(ctx, r.TripID)
	if err != nil {
		return nil, err
	}

	intent, err := s.payments.CreateIntent(ctx, r, trip.PricePerSeat)
	if err != nil {
		return nil, err
	}

	fresh, err := s.reservationRepo.GetByID(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	return &CreateReservationResult{Reservation: fresh, ClientSecret: intent.ClientSecret}, nil
}

// GetReservation retrieves a reservation visible to the actor: its
// passenger, the trip's driver or the system.
func (s *ReservationService) GetReservation(ctx context.Context, actor domain.Actor, reservationID string) (*domain.Reservation, error) {
	if reservationID == "" {
		return nil, ErrInvalidReservationID
	}

	r, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if actor.IsSystem() || actor.IsPassenger(r.Passenger.ID) {
		return r, nil
	}

	if actor.Role == domain.RoleDriver {
		trip, err := s.catalog.GetTrip(ctx, r.TripID)
		if err != nil {
			return nil, err
		}
		if actor.IsDriverOf(trip) {
			return r, nil
		}
	}

	return nil, ErrForbidden
}

// ListReservationsForPassenger lists the calling passenger's reservations,
// optionally filtered by status.
func (s *ReservationService) ListReservationsForPassenger(ctx context.Context, actor domain.Actor, statuses ...domain.ReservationStatus) ([]*domain.Reservation, error) {
	if actor.Role != domain.RolePassenger || actor.UserID == "" {
		return nil, ErrForbidden
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, ErrInvalidStatusFilter
		}
	}
	return s.reservationRepo.ListByPassenger(ctx, actor.UserID, statuses...)
}

// SeatsRemaining returns the number of seats still bookable on a trip.
func (s *ReservationService) SeatsRemaining(ctx context.Context, tripID string) (int, error) {
	return s.inventory.SeatsRemaining(ctx, tripID)
}
