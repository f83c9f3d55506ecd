package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideshare/internal/auth"
	"rideshare/internal/domain"
	"rideshare/internal/handler"
	"rideshare/internal/service"
	"rideshare/internal/tests"
	"rideshare/internal/websocket"
)

const webhookSecret = "whsec_test"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	tokens   *auth.Manager
	payments *tests.MockPaymentRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tripRepo := tests.NewMockTripRepository()
	reservationRepo := tests.NewMockReservationRepository()
	paymentRepo := tests.NewMockPaymentRepository()
	hub := websocket.NewHub(logger, func(r *http.Request) bool { return true })

	catalog := service.NewTripCatalog(tripRepo, nil, logger)
	notifier := service.NewNotificationService(catalog, logger, hub)
	inventory := service.NewInventoryService(tripRepo, reservationRepo, service.NewLocalTripLocker(), logger)
	payments := service.NewPaymentService(reservationRepo, paymentRepo, tripRepo, tests.NewMockProvider(), inventory, notifier,
		service.PaymentPolicy{RetryAttempts: 1}, logger)
	cancellations := service.NewCancellationService(reservationRepo, tripRepo, inventory, payments, notifier, logger)
	decisions := service.NewDecisionService(reservationRepo, tripRepo, inventory, notifier, logger)
	reservations := service.NewReservationService(reservationRepo, catalog, inventory, payments, notifier, 15*time.Minute, logger)
	trips := service.NewTripService(tripRepo, reservationRepo, catalog, inventory, cancellations, notifier, logger)

	tokens := auth.NewManager("test-secret", "rideshare", time.Hour)

	router := NewRouter(RouterDeps{
		TripHandler:        handler.NewTripHandler(trips),
		ReservationHandler: handler.NewReservationHandler(reservations, decisions, cancellations),
		PaymentHandler:     handler.NewPaymentHandler(payments, webhookSecret),
		StreamHandler:      handler.NewStreamHandler(hub, logger),
		Tokens:             tokens,
		Logger:             logger,
	})

	return &testServer{router: router, tokens: tokens, payments: paymentRepo}
}

func (s *testServer) do(t *testing.T, method, path string, actor *domain.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		token, err := s.tokens.GenerateToken(*actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) webhook(t *testing.T, secret, eventType, intentID string) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"type": eventType,
		"data": map[string]string{"intent_id": intentID},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", secret)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_ReservationLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	driver := &domain.Actor{Role: domain.RoleDriver, UserID: "driver-1"}
	alice := &domain.Actor{Role: domain.RolePassenger, UserID: "alice"}
	bob := &domain.Actor{Role: domain.RolePassenger, UserID: "bob"}

	// Publish a single-seat trip.
	rec := s.do(t, http.MethodPost, "/v1/trips", driver, map[string]any{
		"departure":      "Lyon",
		"arrival":        "Grenoble",
		"departure_at":   time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"price_per_seat": 12.5,
		"capacity":       1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	trip := decode[handler.TripResponse](t, rec)
	tripPath := "/v1/trips/" + trip.ID

	// Alice takes the only seat with cash.
	rec = s.do(t, http.MethodPost, tripPath+"/reservations", alice, map[string]string{
		"name": "Alice", "phone": "+33611111111", "payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cash := decode[handler.ReservationResponse](t, rec)
	assert.Equal(t, string(domain.ReservationStatusPending), cash.Status)

	// Bob finds the trip full.
	rec = s.do(t, http.MethodPost, tripPath+"/reservations", bob, map[string]string{
		"name": "Bob", "phone": "+33622222222", "payment_method": "online",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_seats_available", decode[handler.ErrorResponse](t, rec).Code)

	// Passengers cannot decide.
	rec = s.do(t, http.MethodPost, "/v1/reservations/"+cash.ID+"/decision", alice, map[string]string{"decision": "accept"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The driver rejects Alice and the seat comes back.
	rec = s.do(t, http.MethodPost, "/v1/reservations/"+cash.ID+"/decision", driver, map[string]string{"decision": "reject"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.ReservationStatusRejected), decode[handler.ReservationResponse](t, rec).Status)

	rec = s.do(t, http.MethodGet, tripPath+"/seats", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["seats_remaining"])

	// Bob books online and pays.
	rec = s.do(t, http.MethodPost, tripPath+"/reservations", bob, map[string]string{
		"name": "Bob", "phone": "+33622222222", "payment_method": "online",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	online := decode[handler.ReservationResponse](t, rec)
	assert.Equal(t, string(domain.ReservationStatusAwaitingPayment), online.Status)
	assert.NotEmpty(t, online.ClientSecret)

	intentID := s.payments.PaymentFor(online.ID).IntentID

	rec = s.webhook(t, "wrong", handler.EventPaymentSucceeded, intentID)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.webhook(t, webhookSecret, handler.EventPaymentSucceeded, intentID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.ReservationStatusPending), decode[handler.WebhookResponse](t, rec).Status)

	// Duplicate delivery is acknowledged without change.
	rec = s.webhook(t, webhookSecret, handler.EventPaymentSucceeded, intentID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.ReservationStatusPending), decode[handler.WebhookResponse](t, rec).Status)

	rec = s.webhook(t, webhookSecret, "customer.created", intentID)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The driver accepts, then Bob cancels and is refunded.
	rec = s.do(t, http.MethodPost, "/v1/reservations/"+online.ID+"/decision", driver, map[string]string{"decision": "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/reservations/"+online.ID+"/cancel", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[handler.CancellationResponse](t, rec)
	assert.True(t, cancelled.Released)
	assert.False(t, cancelled.RefundPending)
	assert.Equal(t, string(domain.PaymentStatusRefunded), cancelled.Reservation.PaymentStatus)

	// A second cancel is a no-op.
	rec = s.do(t, http.MethodPost, "/v1/reservations/"+online.ID+"/cancel", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[handler.CancellationResponse](t, rec).Released)

	rec = s.do(t, http.MethodGet, "/v1/passengers/me/reservations?status=cancelled", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_RequiresAuthAndRole(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/trips/any", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	passenger := &domain.Actor{Role: domain.RolePassenger, UserID: "alice"}
	rec = s.do(t, http.MethodPost, "/v1/trips", passenger, map[string]any{"departure": "Lyon"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/trips/missing", passenger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
