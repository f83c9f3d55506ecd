package domain

import (
	"errors"
	"fmt"
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationStatusAwaitingPayment ReservationStatus = "awaiting_payment"
	ReservationStatusPending         ReservationStatus = "pending"
	ReservationStatusAccepted        ReservationStatus = "accepted"
	ReservationStatusRejected        ReservationStatus = "rejected"
	ReservationStatusCancelled       ReservationStatus = "cancelled"
	ReservationStatusCompleted       ReservationStatus = "completed"
)

// HeldStatuses are the states in which a reservation occupies a seat.
var HeldStatuses = []ReservationStatus{
	ReservationStatusAwaitingPayment,
	ReservationStatusPending,
	ReservationStatusAccepted,
}

// HoldsSeat reports whether a reservation in this state counts against capacity.
func (s ReservationStatus) HoldsSeat() bool {
	switch s {
	case ReservationStatusAwaitingPayment, ReservationStatusPending, ReservationStatusAccepted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationStatusRejected, ReservationStatusCancelled, ReservationStatusCompleted:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	return s.HoldsSeat() || s.IsTerminal()
}

// PaymentMethod is how the passenger settles the seat price.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodOnline PaymentMethod = "online"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodOnline
}

// PaymentStatus is the reservation-level view of the payment.
type PaymentStatus string

const (
	PaymentStatusUnpaid     PaymentStatus = "unpaid"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Passenger holds the contact details captured with a reservation.
type Passenger struct {
	ID      string
	Name    string
	Phone   string
	Address string
}

// Reservation is a passenger's claim on one seat of a trip.
// Reservations are never deleted; terminal states are kept for history.
type Reservation struct {
	ID              string
	TripID          string
	Passenger       Passenger
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Status          ReservationStatus
	RefundPending   bool
	PaymentIntentID string
	PaymentDeadline time.Time // zero for cash reservations
	CancelReason    string
	CreatedAt       time.Time
	DecidedAt       time.Time
	UpdatedAt       time.Time
	Version         int
}

// ErrInvalidTransition is returned when a status change is not allowed from
// the reservation's current state.
var ErrInvalidTransition = errors.New("invalid reservation transition")

// allowedTransitions lists every legal move of the reservation state machine.
var allowedTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusAwaitingPayment: {
		ReservationStatusPending,
		ReservationStatusAccepted, // auto-accept after payment
		ReservationStatusCancelled,
	},
	ReservationStatusPending: {
		ReservationStatusAccepted,
		ReservationStatusRejected,
		ReservationStatusCancelled,
	},
	ReservationStatusAccepted: {
		ReservationStatusCompleted,
		ReservationStatusCancelled,
	},
	ReservationStatusRejected:  {},
	ReservationStatusCancelled: {},
	ReservationStatusCompleted: {},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to ReservationStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition when from -> to is not allowed.
func ValidateTransition(from, to ReservationStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// InitialStatus returns the state a new reservation starts in.
func InitialStatus(method PaymentMethod) ReservationStatus {
	if method == PaymentMethodOnline {
		return ReservationStatusAwaitingPayment
	}
	return ReservationStatusPending
}

// TransitionTo moves the reservation to status to, stamping the time of
// driver decisions. It does not persist anything.
func (r *Reservation) TransitionTo(to ReservationStatus, at time.Time) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return err
	}
	if r.Status == ReservationStatusPending && (to == ReservationStatusAccepted || to == ReservationStatusRejected) {
		r.DecidedAt = at
	}
	r.Status = to
	r.UpdatedAt = at
	return nil
}

// OwnedBy reports whether passengerID made the reservation.
func (r *Reservation) OwnedBy(passengerID string) bool {
	return passengerID != "" && r.Passenger.ID == passengerID
}

// PaymentExpired reports whether an online checkout has passed its deadline.
func (r *Reservation) PaymentExpired(now time.Time) bool {
	return r.Status == ReservationStatusAwaitingPayment &&
		!r.PaymentDeadline.IsZero() && now.After(r.PaymentDeadline)
}
