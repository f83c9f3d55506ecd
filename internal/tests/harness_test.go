package tests

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"rideshare/internal/domain"
	"rideshare/internal/service"
)

// engine bundles every service over in-memory repositories.
type engine struct {
	tripRepo        *MockTripRepository
	reservationRepo *MockReservationRepository
	paymentRepo     *MockPaymentRepository
	provider        *MockProvider
	publisher       *RecordingPublisher

	inventory     *service.InventoryService
	payments      *service.PaymentService
	cancellations *service.CancellationService
	decisions     *service.DecisionService
	reservations  *service.ReservationService
	trips         *service.TripService
	worker        *service.ExpiryWorker
}

type engineOption func(*engineConfig)

type engineConfig struct {
	locker         service.TripLocker
	cache          *MockCacheStore
	policy         service.PaymentPolicy
	paymentTimeout time.Duration
	logger         *slog.Logger
}

func withLocker(l service.TripLocker) engineOption {
	return func(c *engineConfig) { c.locker = l }
}

func withCache(cache *MockCacheStore) engineOption {
	return func(c *engineConfig) { c.cache = cache }
}

func withAutoAccept() engineOption {
	return func(c *engineConfig) { c.policy.AutoAcceptPaid = true }
}

func withRetries(attempts int) engineOption {
	return func(c *engineConfig) { c.policy.RetryAttempts = attempts }
}

func withLogger(l *slog.Logger) engineOption {
	return func(c *engineConfig) { c.logger = l }
}

func newEngine(t *testing.T, opts ...engineOption) *engine {
	t.Helper()

	cfg := engineConfig{
		locker:         service.NewLocalTripLocker(),
		policy:         service.PaymentPolicy{RetryAttempts: 1, RetryBase: time.Millisecond},
		paymentTimeout: 15 * time.Minute,
		logger:         discardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger

	e := &engine{
		tripRepo:        NewMockTripRepository(),
		reservationRepo: NewMockReservationRepository(),
		paymentRepo:     NewMockPaymentRepository(),
		provider:        NewMockProvider(),
		publisher:       NewRecordingPublisher(),
	}
	e.reservationRepo.LinkPayments(e.paymentRepo)

	var catalog *service.TripCatalog
	if cfg.cache != nil {
		catalog = service.NewTripCatalog(e.tripRepo, cfg.cache, logger)
	} else {
		catalog = service.NewTripCatalog(e.tripRepo, nil, logger)
	}

	notifier := service.NewNotificationService(catalog, logger, e.publisher)
	e.inventory = service.NewInventoryService(e.tripRepo, e.reservationRepo, cfg.locker, logger)
	e.payments = service.NewPaymentService(e.reservationRepo, e.paymentRepo, e.tripRepo, e.provider, e.inventory, notifier, cfg.policy, logger)
	e.cancellations = service.NewCancellationService(e.reservationRepo, e.tripRepo, e.inventory, e.payments, notifier, logger)
	e.decisions = service.NewDecisionService(e.reservationRepo, e.tripRepo, e.inventory, notifier, logger)
	e.reservations = service.NewReservationService(e.reservationRepo, catalog, e.inventory, e.payments, notifier, cfg.paymentTimeout, logger)
	e.trips = service.NewTripService(e.tripRepo, e.reservationRepo, catalog, e.inventory, e.cancellations, notifier, logger)
	e.worker = service.NewExpiryWorker(e.reservationRepo, e.inventory, e.payments, notifier, time.Minute, 10, logger)

	return e
}

// addTrip registers an active trip owned by driver-1.
func (e *engine) addTrip(id string, capacity int) *domain.Trip {
	trip := &domain.Trip{
		ID:           id,
		DriverID:     "driver-1",
		Departure:    "Lyon",
		Arrival:      "Grenoble",
		DepartureAt:  time.Now().Add(24 * time.Hour),
		PricePerSeat: 12.5,
		Capacity:     capacity,
		Status:       domain.TripStatusActive,
		CreatedAt:    time.Now(),
	}
	e.tripRepo.AddTrip(trip)
	return trip
}

// book creates a reservation for passengerID and fails the test on error.
func (e *engine) book(t *testing.T, tripID, passengerID string, method domain.PaymentMethod) *service.CreateReservationResult {
	t.Helper()

	result, err := e.reservations.CreateReservation(context.Background(), passengerActor(passengerID), bookingRequest(tripID, method))
	if err != nil {
		t.Fatalf("book %s on %s: unexpected error: %v", passengerID, tripID, err)
	}
	return result
}

// bookPaid books an online reservation and confirms its payment.
func (e *engine) bookPaid(t *testing.T, tripID, passengerID string) *domain.Reservation {
	t.Helper()

	result := e.book(t, tripID, passengerID, domain.PaymentMethodOnline)
	r, err := e.payments.OnConfirmed(context.Background(), result.Reservation.PaymentIntentID)
	if err != nil {
		t.Fatalf("confirm payment: unexpected error: %v", err)
	}
	return r
}

func (e *engine) seats(t *testing.T, tripID string) int {
	t.Helper()

	n, err := e.inventory.SeatsRemaining(context.Background(), tripID)
	if err != nil {
		t.Fatalf("seats remaining: unexpected error: %v", err)
	}
	return n
}

func bookingRequest(tripID string, method domain.PaymentMethod) service.CreateReservationRequest {
	return service.CreateReservationRequest{
		TripID:        tripID,
		Passenger:     domain.Passenger{Name: "Camille", Phone: "+33600000000"},
		PaymentMethod: method,
	}
}

func passengerActor(id string) domain.Actor {
	return domain.Actor{Role: domain.RolePassenger, UserID: id}
}

func driverActor(id string) domain.Actor {
	return domain.Actor{Role: domain.RoleDriver, UserID: id}
}

func newPassengerID() string {
	return "passenger-" + uuid.New().String()[:8]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
