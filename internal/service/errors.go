package service

import (
	"errors"

	"rideshare/internal/domain"
)

var (
	// ErrNoSeatsAvailable is returned when every seat of the trip is held.
	ErrNoSeatsAvailable = errors.New("no seats left")

	// ErrTripNotBookable is returned when the trip is completed or cancelled.
	ErrTripNotBookable = errors.New("trip is not open for booking")

	// ErrInvalidTransition is returned when the reservation's current state does
	// not allow the requested change.
	ErrInvalidTransition = domain.ErrInvalidTransition

	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("operation not allowed for this user")

	// ErrPaymentFailed is returned when the provider declines the payment.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrPaymentProviderUnavailable is returned when the provider cannot be reached.
	ErrPaymentProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidReservationID is returned when reservation ID is empty.
	ErrInvalidReservationID = errors.New("invalid reservation id")

	// ErrInvalidPassenger is returned when passenger name or phone is missing.
	ErrInvalidPassenger = errors.New("passenger name and phone are required")

	// ErrInvalidPaymentMethod is returned when payment method is invalid.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidDecision is returned when a driver decision is neither accept nor reject.
	ErrInvalidDecision = errors.New("decision must be accept or reject")

	// ErrInvalidIntentID is returned when a provider callback carries no intent ID.
	ErrInvalidIntentID = errors.New("invalid payment intent id")

	// ErrInvalidTripStatus is returned when a trip status change target is unknown.
	ErrInvalidTripStatus = errors.New("invalid trip status")

	// ErrInvalidTrip is returned when a published trip is missing required fields.
	ErrInvalidTrip = errors.New("trip needs departure, arrival, departure time and a non-negative capacity")

	// ErrInvalidStatusFilter is returned when a reservation status filter is unknown.
	ErrInvalidStatusFilter = errors.New("invalid reservation status filter")
)
