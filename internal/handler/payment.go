package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"rideshare/internal/domain"
	"rideshare/internal/service"
)

const webhookSecretHeader = "X-Webhook-Secret"

// Provider webhook event types.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

// PaymentHandler handles provider callbacks.
type PaymentHandler struct {
	paymentService *service.PaymentService
	webhookSecret  string
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		webhookSecret:  webhookSecret,
	}
}

// WebhookRequest is the provider's callback body.
type WebhookRequest struct {
	Type string `json:"type"`
	Data struct {
		IntentID      string `json:"intent_id"`
		FailureReason string `json:"failure_reason,omitempty"`
	} `json:"data"`
}

// WebhookResponse acknowledges a callback.
type WebhookResponse struct {
	Received      bool   `json:"received"`
	ReservationID string `json:"reservation_id,omitempty"`
	Status        string `json:"status,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

// Webhook handles POST /v1/payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	secret := c.GetHeader(webhookSecretHeader)
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid webhook secret", Code: "unauthorized"})
		return
	}

	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()

	var (
		r   *domain.Reservation
		err error
	)
	switch req.Type {
	case EventPaymentSucceeded:
		r, err = h.paymentService.OnConfirmed(ctx, req.Data.IntentID)
	case EventPaymentFailed:
		r, err = h.paymentService.OnFailed(ctx, req.Data.IntentID, req.Data.FailureReason)
	case EventChargeRefunded:
		r, err = h.paymentService.OnRefunded(ctx, req.Data.IntentID)
	default:
		// Acknowledge events we do not subscribe to so the provider stops retrying.
		respondJSON(c, http.StatusOK, WebhookResponse{Received: true})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, WebhookResponse{
		Received:      true,
		ReservationID: r.ID,
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
	})
}
