package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"rideshare/internal/domain"
	"rideshare/internal/handler"
	"rideshare/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler        *handler.TripHandler
	ReservationHandler *handler.ReservationHandler
	PaymentHandler     *handler.PaymentHandler
	StreamHandler      *handler.StreamHandler
	Tokens             middleware.TokenParser
	RedisClient        *redis.Client
	NewRelicApp        *newrelic.Application
	AllowedOrigins     []string
	Logger             *slog.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.TransactionAttributes())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")

	// Provider callbacks authenticate with the webhook secret.
	v1.POST("/payments/webhook", deps.PaymentHandler.Webhook)

	authed := v1.Group("")
	authed.Use(middleware.RequireAuth(deps.Tokens))
	authed.Use(middleware.Idempotency(deps.RedisClient, deps.Logger))

	driver := middleware.RequireRole(domain.RoleDriver)
	passenger := middleware.RequireRole(domain.RolePassenger)

	trips := authed.Group("/trips")
	{
		trips.POST("", driver, deps.TripHandler.PublishTrip)
		trips.GET("/:id", deps.TripHandler.GetTrip)
		trips.GET("/:id/seats", deps.TripHandler.SeatsRemaining)
		trips.GET("/:id/reservations/pending", driver, deps.ReservationHandler.ListPending)
		trips.POST("/:id/reservations", passenger, deps.ReservationHandler.CreateReservation)
		trips.POST("/:id/complete", driver, deps.TripHandler.CompleteTrip)
		trips.POST("/:id/cancel", driver, deps.TripHandler.CancelTrip)
	}

	reservations := authed.Group("/reservations")
	{
		reservations.GET("/:id", deps.ReservationHandler.GetReservation)
		reservations.POST("/:id/cancel", passenger, deps.ReservationHandler.Cancel)
		reservations.POST("/:id/decision", driver, deps.ReservationHandler.Decide)
		reservations.POST("/:id/payment-intent", passenger, deps.ReservationHandler.RetryPayment)
	}

	drivers := authed.Group("/drivers/me", driver)
	{
		drivers.GET("/trips", deps.TripHandler.ListMine)
		drivers.GET("/events", deps.StreamHandler.Events)
	}

	passengers := authed.Group("/passengers/me", passenger)
	{
		passengers.GET("/reservations", deps.ReservationHandler.ListMine)
		passengers.GET("/events", deps.StreamHandler.Events)
	}

	return router
}
