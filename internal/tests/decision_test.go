package tests

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rideshare/internal/domain"
	"rideshare/internal/service"
)

// ──────────────────────────────────────────────
// 7. DRIVER DECISIONS
// ──────────────────────────────────────────────

func TestDecision_RejectPendingCash_FreesSeat(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.addTrip("trip-1", 2)
	r := e.book(t, "trip-1", "p-1", domain.PaymentMethodCash).Reservation

	before := e.seats(t, "trip-1")

	got, err := e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{
		ReservationID: r.ID,
		Decision:      service.DecisionReject,
		Reason:        "luggage too big",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.ReservationStatusRejected {
		t.Errorf("expected status %s, got %s", domain.ReservationStatusRejected, got.Status)
	}
	if got.CancelReason != "luggage too big" {
		t.Errorf("expected reason to be kept, got %q", got.CancelReason)
	}
	if got.DecidedAt.IsZero() {
		t.Error("expected decision time")
	}
	if after := e.seats(t, "trip-1"); after != before+1 {
		t.Errorf("expected %d seats after reject, got %d", before+1, after)
	}

	events := e.publisher.EventsFor(r.ID)
	last := events[len(events)-1]
	if last.From != domain.ReservationStatusPending || last.To != domain.ReservationStatusRejected {
		t.Errorf("expected pending -> rejected event, got %s -> %s", last.From, last.To)
	}
	if last.ActorRole != domain.RoleDriver {
		t.Errorf("expected driver as actor, got %s", last.ActorRole)
	}
}

func TestDecision_AcceptPending_KeepsSeat(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.addTrip("trip-1", 2)
	r := e.book(t, "trip-1", "p-1", domain.PaymentMethodCash).Reservation

	got, err := e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{
		ReservationID: r.ID,
		Decision:      service.DecisionAccept,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.ReservationStatusAccepted {
		t.Errorf("expected status %s, got %s", domain.ReservationStatusAccepted, got.Status)
	}
	if seats := e.seats(t, "trip-1"); seats != 1 {
		t.Errorf("expected 1 seat remaining, got %d", seats)
	}

	// Deciding again is a conflict, not a silent success.
	_, err = e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{
		ReservationID: r.ID,
		Decision:      service.DecisionReject,
	})
	if !errors.Is(err, service.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on reject after accept, got %v", err)
	}
}

func TestDecision_AwaitingPayment_CannotBeDecided(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.addTrip("trip-1", 2)
	r := e.book(t, "trip-1", "p-1", domain.PaymentMethodOnline).Reservation

	for _, d := range []service.Decision{service.DecisionAccept, service.DecisionReject} {
		_, err := e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{ReservationID: r.ID, Decision: d})
		if !errors.Is(err, service.ErrInvalidTransition) {
			t.Errorf("%s: expected ErrInvalidTransition, got %v", d, err)
		}
	}
	if got := e.reservationRepo.GetReservation(r.ID).Status; got != domain.ReservationStatusAwaitingPayment {
		t.Errorf("expected status to stay %s, got %s", domain.ReservationStatusAwaitingPayment, got)
	}
}

func TestDecision_Authorization(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.addTrip("trip-1", 2)
	r := e.book(t, "trip-1", "p-1", domain.PaymentMethodCash).Reservation

	actors := []domain.Actor{
		driverActor("driver-2"),
		passengerActor("p-1"),
		domain.SystemActor(),
	}
	for _, actor := range actors {
		_, err := e.decisions.Decide(context.Background(), actor, service.DecideRequest{ReservationID: r.ID, Decision: service.DecisionAccept})
		if !errors.Is(err, service.ErrForbidden) {
			t.Errorf("%s %s: expected ErrForbidden, got %v", actor.Role, actor.UserID, err)
		}
	}
}

func TestDecision_InvalidRequest(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	if _, err := e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{Decision: service.DecisionAccept}); !errors.Is(err, service.ErrInvalidReservationID) {
		t.Errorf("expected ErrInvalidReservationID, got %v", err)
	}
	if _, err := e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{ReservationID: "r-1", Decision: "maybe"}); !errors.Is(err, service.ErrInvalidDecision) {
		t.Errorf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestDecision_AcceptOnClosedTrip_NotBookable(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.addTrip("trip-1", 2)
	r := e.book(t, "trip-1", "p-1", domain.PaymentMethodCash).Reservation
	e.tripRepo.SetStatus("trip-1", domain.TripStatusCancelled)

	_, err := e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{ReservationID: r.ID, Decision: service.DecisionAccept})
	if !errors.Is(err, service.ErrTripNotBookable) {
		t.Errorf("expected ErrTripNotBookable, got %v", err)
	}
}

func TestDecision_ListPending(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	e.addTrip("trip-1", 4)
	first := e.book(t, "trip-1", "p-1", domain.PaymentMethodCash).Reservation
	e.book(t, "trip-1", "p-2", domain.PaymentMethodOnline)
	second := e.book(t, "trip-1", "p-3", domain.PaymentMethodCash).Reservation

	pending, err := e.decisions.ListPending(context.Background(), driverActor("driver-1"), "trip-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending reservations, got %d", len(pending))
	}
	ids := map[string]bool{pending[0].ID: true, pending[1].ID: true}
	if !ids[first.ID] || !ids[second.ID] {
		t.Error("expected only the cash reservations to be pending")
	}

	if _, err := e.decisions.ListPending(context.Background(), driverActor("driver-2"), "trip-1"); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden for another driver, got %v", err)
	}
	if _, err := e.decisions.ListPending(context.Background(), driverActor("driver-1"), ""); !errors.Is(err, service.ErrInvalidTripID) {
		t.Errorf("expected ErrInvalidTripID, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 8. DECISION RACES
// ──────────────────────────────────────────────

func TestDecisionRace_AcceptVsCancel(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		e := newEngine(t)
		e.addTrip("trip-1", 1)
		r := e.book(t, "trip-1", "p-1", domain.PaymentMethodCash).Reservation

		var wg sync.WaitGroup
		var acceptErr, cancelErr error
		var cancelled *service.CancellationResult

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{ReservationID: r.ID, Decision: service.DecisionAccept})
		}()
		go func() {
			defer wg.Done()
			cancelled, cancelErr = e.cancellations.Cancel(context.Background(), passengerActor("p-1"), service.CancelRequest{ReservationID: r.ID})
		}()
		wg.Wait()

		if acceptErr != nil && !errors.Is(acceptErr, service.ErrInvalidTransition) {
			t.Errorf("run %d: unexpected accept error: %v", i, acceptErr)
		}
		if cancelErr != nil {
			t.Fatalf("run %d: unexpected cancel error: %v", i, cancelErr)
		}
		if !cancelled.Released {
			t.Errorf("run %d: expected cancel to release the seat", i)
		}

		final := e.reservationRepo.GetReservation(r.ID)
		if final.Status != domain.ReservationStatusCancelled {
			t.Errorf("run %d: expected final status %s, got %s", i, domain.ReservationStatusCancelled, final.Status)
		}
		if seats := e.seats(t, "trip-1"); seats != 1 {
			t.Errorf("run %d: expected 1 seat, got %d", i, seats)
		}
	}
}

func TestDecisionRace_RejectVsCancel_SeatFreedOnce(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		e := newEngine(t)
		e.addTrip("trip-1", 1)
		r := e.book(t, "trip-1", "p-1", domain.PaymentMethodCash).Reservation

		var wg sync.WaitGroup
		var rejectErr, cancelErr error

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, rejectErr = e.decisions.Decide(context.Background(), driverActor("driver-1"), service.DecideRequest{ReservationID: r.ID, Decision: service.DecisionReject})
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = e.cancellations.Cancel(context.Background(), passengerActor("p-1"), service.CancelRequest{ReservationID: r.ID})
		}()
		wg.Wait()

		if rejectErr != nil || cancelErr != nil {
			t.Fatalf("run %d: unexpected errors: reject=%v cancel=%v", i, rejectErr, cancelErr)
		}

		final := e.reservationRepo.GetReservation(r.ID)
		if final.Status != domain.ReservationStatusRejected && final.Status != domain.ReservationStatusCancelled {
			t.Errorf("run %d: unexpected final status %s", i, final.Status)
		}

		var releases int
		for _, ev := range e.publisher.EventsFor(r.ID) {
			if ev.From == domain.ReservationStatusPending && !ev.To.HoldsSeat() {
				releases++
			}
		}
		if releases != 1 {
			t.Errorf("run %d: expected one release event, got %d", i, releases)
		}
		if seats := e.seats(t, "trip-1"); seats != 1 {
			t.Errorf("run %d: expected 1 seat, got %d", i, seats)
		}
	}
}
