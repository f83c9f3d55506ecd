package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rideshare/internal/domain"
	"rideshare/internal/middleware"
	"rideshare/internal/repository"
	"rideshare/internal/service"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal server error", Code: "internal"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error(), Code: errorCode(err)})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// badRequest sends a 400 with a fixed message.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "invalid_request"})
}

// actorOrAbort returns the authenticated caller. The auth middleware always
// runs first, so a missing actor is a wiring bug.
func actorOrAbort(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required", Code: "unauthorized"})
		return domain.Actor{}, false
	}
	return actor, true
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidTripID),
		errors.Is(err, service.ErrInvalidReservationID),
		errors.Is(err, service.ErrInvalidPassenger),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidDecision),
		errors.Is(err, service.ErrInvalidIntentID),
		errors.Is(err, service.ErrInvalidTripStatus),
		errors.Is(err, service.ErrInvalidTrip),
		errors.Is(err, service.ErrInvalidStatusFilter):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrNoSeatsAvailable),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict

	case errors.Is(err, service.ErrTripNotBookable):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, service.ErrPaymentFailed):
		return http.StatusPaymentRequired

	// Service unavailable
	case errors.Is(err, service.ErrPaymentProviderUnavailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// errorCode gives clients a stable identifier for the error kinds they
// branch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrNoSeatsAvailable):
		return "no_seats_available"
	case errors.Is(err, service.ErrTripNotBookable):
		return "trip_not_bookable"
	case errors.Is(err, service.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, repository.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, service.ErrForbidden):
		return "forbidden"
	case errors.Is(err, service.ErrPaymentFailed):
		return "payment_failed"
	case errors.Is(err, service.ErrPaymentProviderUnavailable):
		return "payment_provider_unavailable"
	default:
		return "invalid_request"
	}
}

// ReservationResponse is the HTTP representation of a reservation.
type ReservationResponse struct {
	ID              string `json:"id"`
	TripID          string `json:"trip_id"`
	PassengerID     string `json:"passenger_id"`
	PassengerName   string `json:"passenger_name"`
	PassengerPhone  string `json:"passenger_phone"`
	PassengerAddr   string `json:"passenger_address,omitempty"`
	PaymentMethod   string `json:"payment_method"`
	PaymentStatus   string `json:"payment_status"`
	Status          string `json:"status"`
	RefundPending   bool   `json:"refund_pending"`
	PaymentDeadline string `json:"payment_deadline,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
	DecidedAt       string `json:"decided_at,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty"`
}

func toReservationResponse(r *domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:              r.ID,
		TripID:          r.TripID,
		PassengerID:     r.Passenger.ID,
		PassengerName:   r.Passenger.Name,
		PassengerPhone:  r.Passenger.Phone,
		PassengerAddr:   r.Passenger.Address,
		PaymentMethod:   string(r.PaymentMethod),
		PaymentStatus:   string(r.PaymentStatus),
		Status:          string(r.Status),
		RefundPending:   r.RefundPending,
		PaymentDeadline: formatTime(r.PaymentDeadline),
		CancelReason:    r.CancelReason,
		CreatedAt:       formatTime(r.CreatedAt),
		DecidedAt:       formatTime(r.DecidedAt),
	}
}

func toReservationResponses(list []*domain.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(list))
	for _, r := range list {
		out = append(out, toReservationResponse(r))
	}
	return out
}

// TripResponse is the HTTP representation of a trip.
type TripResponse struct {
	ID             string  `json:"id"`
	DriverID       string  `json:"driver_id"`
	Departure      string  `json:"departure"`
	Arrival        string  `json:"arrival"`
	DepartureAt    string  `json:"departure_at"`
	ArrivalAt      string  `json:"arrival_at,omitempty"`
	PricePerSeat   float64 `json:"price_per_seat"`
	Capacity       int     `json:"capacity"`
	Status         string  `json:"status"`
	SeatsRemaining *int    `json:"seats_remaining,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func toTripResponse(t *domain.Trip) TripResponse {
	return TripResponse{
		ID:           t.ID,
		DriverID:     t.DriverID,
		Departure:    t.Departure,
		Arrival:      t.Arrival,
		DepartureAt:  formatTime(t.DepartureAt),
		ArrivalAt:    formatTime(t.ArrivalAt),
		PricePerSeat: t.PricePerSeat,
		Capacity:     t.Capacity,
		Status:       string(t.Status),
		CreatedAt:    formatTime(t.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
