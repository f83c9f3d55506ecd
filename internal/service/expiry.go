package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

// SweepStats reports what one expiry pass did.
type SweepStats struct {
	Expired        int
	RefundsRetried int
	RefundsSettled int
}

// ExpiryWorker cancels abandoned online checkouts and retries refunds that
// never reached the provider.
type ExpiryWorker struct {
	reservationRepo repository.ReservationRepository
	inventory       *InventoryService
	payments        *PaymentService
	notifier        *NotificationService
	interval        time.Duration
	batchSize       int
	logger          *slog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(
	reservationRepo repository.ReservationRepository,
	inventory *InventoryService,
	payments *PaymentService,
	notifier *NotificationService,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *ExpiryWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpiryWorker{
		reservationRepo: reservationRepo,
		inventory:       inventory,
		payments:        payments,
		notifier:        notifier,
		interval:        interval,
		batchSize:       batchSize,
		logger:          logger,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("expiry_worker_started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry_worker_stopped")
			return nil
		case now := <-ticker.C:
			if _, err := w.SweepOnce(ctx, now); err != nil && ctx.Err() == nil {
				w.logger.Error("expiry_sweep_failed", slog.Any("error", err))
			}
		}
	}
}

// SweepOnce expires checkouts whose payment deadline passed before now and
// retries outstanding refunds.
func (w *ExpiryWorker) SweepOnce(ctx context.Context, now time.Time) (SweepStats, error) {
	var stats SweepStats

	expired, err := w.reservationRepo.ListExpiredAwaitingPayment(ctx, now, w.batchSize)
	if err != nil {
		return stats, err
	}

	for _, r := range expired {
		result, err := w.inventory.Release(ctx, ReleaseRequest{
			ReservationID: r.ID,
			To:            domain.ReservationStatusCancelled,
			From:          []domain.ReservationStatus{domain.ReservationStatusAwaitingPayment},
			Apply: func(r *domain.Reservation) {
				r.PaymentStatus = domain.PaymentStatusFailed
				r.CancelReason = "payment timeout"
			},
		})
		if err != nil {
			// Confirmed between listing and release.
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return stats, err
		}
		if result.Released {
			stats.Expired++
			w.notifier.ReservationChanged(ctx, result.Reservation, result.From, domain.SystemActor())
		}
	}

	refunds, err := w.reservationRepo.ListRefundsToRetry(ctx, w.batchSize)
	if err != nil {
		return stats, err
	}

	for _, r := range refunds {
		result, err := w.payments.Refund(ctx, r.ID)
		if err != nil {
			w.logger.Warn("refund_retry_failed", slog.String("reservation_id", r.ID), slog.Any("error", err))
			continue
		}
		if result.Requested {
			stats.RefundsRetried++
		}
		if !result.RefundPending {
			stats.RefundsSettled++
		}
	}

	if stats.Expired > 0 || stats.RefundsRetried > 0 {
		w.logger.Info("expiry_sweep_done",
			slog.Int("expired", stats.Expired),
			slog.Int("refunds_retried", stats.RefundsRetried),
			slog.Int("refunds_settled", stats.RefundsSettled),
		)
	}

	return stats, nil
}
