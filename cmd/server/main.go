package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"rideshare/internal/app"
	"rideshare/internal/auth"
	"rideshare/internal/config"
	"rideshare/internal/handler"
	"rideshare/internal/logger"
	"rideshare/internal/rabbitmq"
	internalRedis "rideshare/internal/redis"
	"rideshare/internal/repository/postgres"
	"rideshare/internal/service"
	"rideshare/internal/websocket"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log, "rideshare-reservations")

	if err := run(cfg, log); err != nil {
		log.Error("server_exit", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("server_exited")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Warn("newrelic_init_failed", slog.Any("error", err))
		} else {
			log.Info("newrelic_enabled", slog.String("app", cfg.NewRelic.AppName))
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := app.NewDatabase(startCtx, cfg.Database, nrApp, log)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("postgres_connected", slog.String("host", cfg.Database.Host))

	redisClient, err := app.NewRedisClient(startCtx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Info("redis_connected", slog.String("addr", cfg.Redis.Addr))

	var publishers []service.EventPublisher
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmq.NewConnection(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		publishers = append(publishers, rabbitmq.NewEventPublisher(conn))
	}

	hub := websocket.NewHub(log, websocketOriginCheck(cfg.Server.AllowedOrigins))
	publishers = append(publishers, hub)

	server, worker := wireServer(db, redisClient, nrApp, hub, publishers, cfg, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server_starting", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return worker.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("server_shutting_down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// wireServer wires all dependencies and returns the HTTP server and the
// expiry worker.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	hub *websocket.Hub,
	publishers []service.EventPublisher,
	cfg *config.Config,
	log *slog.Logger,
) (*http.Server, *service.ExpiryWorker) {
	// Initialize Redis stores.
	cacheStore := internalRedis.NewCacheStore(redisClient)

	var locker service.TripLocker = service.NewLocalTripLocker()
	if cfg.Redis.LocksEnabled {
		locker = service.NewDistributedTripLocker(internalRedis.NewLockStore(redisClient), cfg.Reservation.TripLockTTL, log)
	}

	// Initialize repositories.
	tripRepo := postgres.NewTripRepository(db)
	reservationRepo := postgres.NewReservationRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)

	// Initialize services.
	catalog := service.NewTripCatalog(tripRepo, cacheStore, log)
	notifier := service.NewNotificationService(catalog, log, publishers...)
	inventory := service.NewInventoryService(tripRepo, reservationRepo, locker, log)
	payments := service.NewPaymentService(
		reservationRepo, paymentRepo, tripRepo,
		service.NewSandboxProvider(),
		inventory, notifier,
		service.PaymentPolicy{
			AutoAcceptPaid: cfg.Reservation.AutoAcceptPaid,
			RetryAttempts:  cfg.Payment.RetryAttempts,
			RetryBase:      cfg.Payment.RetryBase,
		},
		log,
	)
	cancellations := service.NewCancellationService(reservationRepo, tripRepo, inventory, payments, notifier, log)
	decisions := service.NewDecisionService(reservationRepo, tripRepo, inventory, notifier, log)
	reservations := service.NewReservationService(reservationRepo, catalog, inventory, payments, notifier, cfg.Reservation.PaymentTimeout, log)
	trips := service.NewTripService(tripRepo, reservationRepo, catalog, inventory, cancellations, notifier, log)
	worker := service.NewExpiryWorker(reservationRepo, inventory, payments, notifier, cfg.Reservation.SweepInterval, cfg.Reservation.SweepBatchSize, log)

	// Initialize handlers.
	router := app.NewRouter(app.RouterDeps{
		TripHandler:        handler.NewTripHandler(trips),
		ReservationHandler: handler.NewReservationHandler(reservations, decisions, cancellations),
		PaymentHandler:     handler.NewPaymentHandler(payments, cfg.Payment.WebhookSecret),
		StreamHandler:      handler.NewStreamHandler(hub, log),
		Tokens:             auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		RedisClient:        redisClient,
		NewRelicApp:        nrApp,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		Logger:             log,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, worker
}

// websocketOriginCheck accepts browser origins from the CORS allow list.
func websocketOriginCheck(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}
