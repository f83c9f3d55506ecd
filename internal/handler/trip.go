package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rideshare/internal/domain"
	"rideshare/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// PublishTripRequest is the HTTP request body for publishing a trip.
type PublishTripRequest struct {
	Departure    string    `json:"departure"`
	Arrival      string    `json:"arrival"`
	DepartureAt  time.Time `json:"departure_at"`
	ArrivalAt    time.Time `json:"arrival_at"`
	PricePerSeat float64   `json:"price_per_seat"`
	Capacity     int       `json:"capacity"`
}

// TripStatusResponse is the HTTP response for closing a trip.
type TripStatusResponse struct {
	Trip                  TripResponse `json:"trip"`
	CompletedReservations int          `json:"completed_reservations"`
	CancelledReservations int          `json:"cancelled_reservations"`
}

// PublishTrip handles POST /v1/trips
func (h *TripHandler) PublishTrip(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req PublishTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	trip, err := h.tripService.PublishTrip(c.Request.Context(), actor, service.PublishTripRequest{
		Departure:    req.Departure,
		Arrival:      req.Arrival,
		DepartureAt:  req.DepartureAt,
		ArrivalAt:    req.ArrivalAt,
		PricePerSeat: req.PricePerSeat,
		Capacity:     req.Capacity,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toTripResponse(trip))
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	availability, err := h.tripService.GetAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := toTripResponse(availability.Trip)
	resp.SeatsRemaining = &availability.SeatsRemaining
	respondJSON(c, http.StatusOK, resp)
}

// SeatsRemaining handles GET /v1/trips/:id/seats
func (h *TripHandler) SeatsRemaining(c *gin.Context) {
	availability, err := h.tripService.GetAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"trip_id":         availability.Trip.ID,
		"capacity":        availability.Trip.Capacity,
		"seats_remaining": availability.SeatsRemaining,
	})
}

// ListMine handles GET /v1/drivers/me/trips
func (h *TripHandler) ListMine(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	trips, err := h.tripService.ListTripsByDriver(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]TripResponse, 0, len(trips))
	for _, t := range trips {
		out = append(out, toTripResponse(t))
	}
	respondJSON(c, http.StatusOK, gin.H{"trips": out})
}

// CompleteTrip handles POST /v1/trips/:id/complete
func (h *TripHandler) CompleteTrip(c *gin.Context) {
	h.markStatus(c, domain.TripStatusCompleted)
}

// CancelTrip handles POST /v1/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	h.markStatus(c, domain.TripStatusCancelled)
}

func (h *TripHandler) markStatus(c *gin.Context, status domain.TripStatus) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	result, err := h.tripService.MarkTripStatus(c.Request.Context(), actor, c.Param("id"), status)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, TripStatusResponse{
		Trip:                  toTripResponse(result.Trip),
		CompletedReservations: result.Completed,
		CancelledReservations: result.Cancelled,
	})
}
