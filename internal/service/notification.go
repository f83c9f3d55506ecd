package service

import (
	"context"
	"log/slog"
	"time"

	"rideshare/internal/domain"
)

// EventPublisher delivers reservation events to one channel (broker, live
// stream). Implementations must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.ReservationEvent) error
}

// tripLookup resolves the trip of a reservation for event routing.
type tripLookup interface {
	GetTrip(ctx context.Context, tripID string) (*domain.Trip, error)
}

// NotificationService fans reservation status changes out to every
// configured publisher. Delivery failures are logged and never fail the
// operation that caused the change.
type NotificationService struct {
	trips      tripLookup
	publishers []EventPublisher
	logger     *slog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(trips tripLookup, logger *slog.Logger, publishers ...EventPublisher) *NotificationService {
	return &NotificationService{
		trips:      trips,
		publishers: publishers,
		logger:     logger,
	}
}

// ReservationChanged emits a status-changed event for r, which moved from
// the given status. from is empty for newly created reservations.
func (s *NotificationService) ReservationChanged(ctx context.Context, r *domain.Reservation, from domain.ReservationStatus, actor domain.Actor) {
	event := domain.NewStatusChangedEvent(r, from, actor, time.Now().UTC())

	if s.trips != nil {
		if trip, err := s.trips.GetTrip(ctx, r.TripID); err == nil {
			event.DriverID = trip.DriverID
		} else {
			s.logger.Warn("event_trip_lookup_failed",
				slog.String("trip_id", r.TripID),
				slog.Any("error", err),
			)
		}
	}

	s.logger.Info("reservation_status_changed",
		slog.String("reservation_id", event.ReservationID),
		slog.String("trip_id", event.TripID),
		slog.String("from", string(event.From)),
		slog.String("to", string(event.To)),
		slog.String("actor_role", string(event.ActorRole)),
	)

	for _, p := range s.publishers {
		if err := p.Publish(ctx, event); err != nil {
			s.logger.Error("event_publish_failed",
				slog.String("reservation_id", event.ReservationID),
				slog.Any("error", err),
			)
		}
	}
}
