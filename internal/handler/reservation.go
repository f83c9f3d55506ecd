package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rideshare/internal/domain"
	"rideshare/internal/service"
)

// ReservationHandler handles HTTP requests for reservations.
type ReservationHandler struct {
	reservationService  *service.ReservationService
	decisionService     *service.DecisionService
	cancellationService *service.CancellationService
}

// NewReservationHandler creates a new ReservationHandler.
func NewReservationHandler(
	reservationService *service.ReservationService,
	decisionService *service.DecisionService,
	cancellationService *service.CancellationService,
) *ReservationHandler {
	return &ReservationHandler{
		reservationService:  reservationService,
		decisionService:     decisionService,
		cancellationService: cancellationService,
	}
}

// CreateReservationRequest is the HTTP request body for booking a seat.
type CreateReservationRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Address       string `json:"address,omitempty"`
	PaymentMethod string `json:"payment_method"` // cash or online
}

// PaymentPendingResponse is returned when the seat is held but the payment
// provider could not be reached.
type PaymentPendingResponse struct {
	Error       string              `json:"error"`
	Code        string              `json:"code"`
	Reservation ReservationResponse `json:"reservation"`
}

// CreateReservation handles POST /v1/trips/:id/reservations
func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.reservationService.CreateReservation(c.Request.Context(), actor, service.CreateReservationRequest{
		TripID: c.Param("id"),
		Passenger: domain.Passenger{
			Name:    req.Name,
			Phone:   req.Phone,
			Address: req.Address,
		},
		PaymentMethod: domain.PaymentMethod(strings.ToLower(req.PaymentMethod)),
	})
	if err != nil {
		if result != nil && errors.Is(err, service.ErrPaymentProviderUnavailable) {
			respondJSON(c, http.StatusServiceUnavailable, PaymentPendingResponse{
				Error:       err.Error(),
				Code:        errorCode(err),
				Reservation: toReservationResponse(result.Reservation),
			})
			return
		}
		respondError(c, err)
		return
	}

	resp := toReservationResponse(result.Reservation)
	resp.ClientSecret = result.ClientSecret
	respondJSON(c, http.StatusCreated, resp)
}

// RetryPayment handles POST /v1/reservations/:id/payment-intent
func (h *ReservationHandler) RetryPayment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	result, err := h.reservationService.RetryPaymentIntent(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := toReservationResponse(result.Reservation)
	resp.ClientSecret = result.ClientSecret
	respondJSON(c, http.StatusOK, resp)
}

// GetReservation handles GET /v1/reservations/:id
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	r, err := h.reservationService.GetReservation(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toReservationResponse(r))
}

// ListMine handles GET /v1/passengers/me/reservations
func (h *ReservationHandler) ListMine(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var statuses []domain.ReservationStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.ReservationStatus(strings.TrimSpace(s)))
		}
	}

	list, err := h.reservationService.ListReservationsForPassenger(c.Request.Context(), actor, statuses...)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"reservations": toReservationResponses(list)})
}

// CancelReservationRequest is the optional HTTP request body for cancelling.
type CancelReservationRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancellationResponse is the HTTP response for a cancellation.
type CancellationResponse struct {
	Released      bool                `json:"released"`
	RefundPending bool                `json:"refund_pending"`
	Reservation   ReservationResponse `json:"reservation"`
}

// Cancel handles POST /v1/reservations/:id/cancel
func (h *ReservationHandler) Cancel(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req CancelReservationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	result, err := h.cancellationService.Cancel(c.Request.Context(), actor, service.CancelRequest{
		ReservationID: c.Param("id"),
		Reason:        req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CancellationResponse{
		Released:      result.Released,
		RefundPending: result.RefundPending,
		Reservation:   toReservationResponse(result.Reservation),
	})
}

// DecisionRequest is the HTTP request body for a driver decision.
type DecisionRequest struct {
	Decision string `json:"decision"` // accept or reject
	Reason   string `json:"reason,omitempty"`
}

// Decide handles POST /v1/reservations/:id/decision
func (h *ReservationHandler) Decide(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	r, err := h.decisionService.Decide(c.Request.Context(), actor, service.DecideRequest{
		ReservationID: c.Param("id"),
		Decision:      service.Decision(strings.ToLower(req.Decision)),
		Reason:        req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toReservationResponse(r))
}

// ListPending handles GET /v1/trips/:id/reservations/pending
func (h *ReservationHandler) ListPending(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	list, err := h.decisionService.ListPending(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"reservations": toReservationResponses(list)})
}
