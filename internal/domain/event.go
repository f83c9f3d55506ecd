package domain

import "time"

// EventReservationStatusChanged is emitted on every reservation state change,
// including creation.
const EventReservationStatusChanged = "reservation.status_changed"

// ReservationEvent describes a reservation state change for subscribers.
type ReservationEvent struct {
	Type          string            `json:"type"`
	ReservationID string            `json:"reservation_id"`
	TripID        string            `json:"trip_id"`
	DriverID      string            `json:"driver_id,omitempty"`
	PassengerID   string            `json:"passenger_id"`
	From          ReservationStatus `json:"from,omitempty"`
	To            ReservationStatus `json:"to"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	RefundPending bool              `json:"refund_pending"`
	ActorRole     Role              `json:"actor_role"`
	Reason        string            `json:"reason,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// NewStatusChangedEvent builds the event for r having moved from -> r.Status.
func NewStatusChangedEvent(r *Reservation, from ReservationStatus, actor Actor, at time.Time) ReservationEvent {
	return ReservationEvent{
		Type:          EventReservationStatusChanged,
		ReservationID: r.ID,
		TripID:        r.TripID,
		PassengerID:   r.Passenger.ID,
		From:          from,
		To:            r.Status,
		PaymentStatus: r.PaymentStatus,
		RefundPending: r.RefundPending,
		ActorRole:     actor.Role,
		Reason:        r.CancelReason,
		OccurredAt:    at,
	}
}
