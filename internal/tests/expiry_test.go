package tests

import (
	"context"
	"testing"
	"time"

	"rideshare/internal/domain"
	"rideshare/internal/service"
)

// ──────────────────────────────────────────────
// 10. PAYMENT TIMEOUTS
// ──────────────────────────────────────────────

func TestExpiry_CancelsAbandonedCheckouts(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.addTrip("trip-1", 3)

	abandoned := e.book(t, "trip-1", "p-1", domain.PaymentMethodOnline).Reservation
	paid := e.bookPaid(t, "trip-1", "p-2")
	cash := e.book(t, "trip-1", "p-3", domain.PaymentMethodCash).Reservation

	if got := e.seats(t, "trip-1"); got != 0 {
		t.Fatalf("expected full trip, got %d seats", got)
	}

	// Nothing is due yet.
	stats, err := e.worker.SweepOnce(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("sweep: unexpected error: %v", err)
	}
	if stats.Expired != 0 {
		t.Errorf("expected nothing expired before the deadline, got %d", stats.Expired)
	}

	stats, err = e.worker.SweepOnce(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep: unexpected error: %v", err)
	}
	if stats.Expired != 1 {
		t.Errorf("expected 1 expired reservation, got %d", stats.Expired)
	}

	expired := e.reservationRepo.GetReservation(abandoned.ID)
	if expired.Status != domain.ReservationStatusCancelled {
		t.Errorf("expected status %s, got %s", domain.ReservationStatusCancelled, expired.Status)
	}
	if expired.PaymentStatus != domain.PaymentStatusFailed {
		t.Errorf("expected payment status %s, got %s", domain.PaymentStatusFailed, expired.PaymentStatus)
	}
	if expired.CancelReason != "payment timeout" {
		t.Errorf("expected timeout reason, got %q", expired.CancelReason)
	}

	if got := e.reservationRepo.GetReservation(paid.ID).Status; got != domain.ReservationStatusPending {
		t.Errorf("expected paid reservation untouched, got %s", got)
	}
	if got := e.reservationRepo.GetReservation(cash.ID).Status; got != domain.ReservationStatusPending {
		t.Errorf("expected cash reservation untouched, got %s", got)
	}
	if got := e.seats(t, "trip-1"); got != 1 {
		t.Errorf("expected 1 seat freed, got %d", got)
	}

	// A second pass finds nothing.
	stats, err = e.worker.SweepOnce(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep: unexpected error: %v", err)
	}
	if stats.Expired != 0 {
		t.Errorf("expected second sweep to be a no-op, got %d", stats.Expired)
	}
}

func TestExpiry_SkipsCheckoutConfirmedMeanwhile(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.addTrip("trip-1", 1)
	r := e.book(t, "trip-1", "p-1", domain.PaymentMethodOnline).Reservation

	// The repository listed it as expired, but the confirmation lands first.
	listed, err := e.reservationRepo.ListExpiredAwaitingPayment(context.Background(), time.Now().Add(time.Hour), 10)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected 1 expired candidate, got %d (%v)", len(listed), err)
	}
	if _, err := e.payments.OnConfirmed(context.Background(), r.PaymentIntentID); err != nil {
		t.Fatalf("confirm: unexpected error: %v", err)
	}

	result, err := e.inventory.Release(context.Background(), service.ReleaseRequest{
		ReservationID: r.ID,
		To:            domain.ReservationStatusCancelled,
		From:          []domain.ReservationStatus{domain.ReservationStatusAwaitingPayment},
	})
	if err == nil || (result != nil && result.Released) {
		t.Error("expected expiry release to be refused after confirmation")
	}

	stats, err := e.worker.SweepOnce(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sweep: unexpected error: %v", err)
	}
	if stats.Expired != 0 {
		t.Errorf("expected nothing expired, got %d", stats.Expired)
	}
	if got := e.seats(t, "trip-1"); got != 0 {
		t.Errorf("expected seat to stay held, got %d", got)
	}
}

func TestExpiry_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.worker.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
