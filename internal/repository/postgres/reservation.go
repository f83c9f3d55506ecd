package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

// ReservationRepository is a PostgreSQL implementation of repository.ReservationRepository.
type ReservationRepository struct {
	db *sql.DB // nil when bound to a caller's transaction
	q  Querier
}

// NewReservationRepository creates a new PostgreSQL reservation repository.
func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db, q: db}
}

// NewReservationRepositoryWithTx creates a reservation repository using a transaction.
func NewReservationRepositoryWithTx(tx *sql.Tx) *ReservationRepository {
	return &ReservationRepository{q: tx}
}

const reservationColumns = `id, trip_id, passenger_id, passenger_name, passenger_phone, passenger_address,
	payment_method, payment_status, status, refund_pending, payment_intent_id, payment_deadline,
	cancel_reason, created_at, decided_at, updated_at, version`

// CreateHeld locks the trip row, counts its held reservations and inserts
// the new one only if a seat is still free.
func (r *ReservationRepository) CreateHeld(ctx context.Context, res *domain.Reservation, capacity int) (err error) {
	if r.db == nil {
		return createHeld(ctx, r.q, res, capacity)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = createHeld(ctx, tx, res, capacity); err != nil {
		return err
	}

	return tx.Commit()
}

func createHeld(ctx context.Context, q Querier, res *domain.Reservation, capacity int) error {
	var tripID string
	err := q.QueryRowContext(ctx, `SELECT id FROM trips WHERE id = $1 FOR UPDATE`, res.TripID).Scan(&tripID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("lock trip: %w", err)
	}

	held, err := countHeld(ctx, q, res.TripID)
	if err != nil {
		return err
	}
	if held >= capacity {
		return repository.ErrCapacityReached
	}

	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = q.ExecContext(ctx, query,
		res.ID,
		res.TripID,
		res.Passenger.ID,
		res.Passenger.Name,
		res.Passenger.Phone,
		toNullString(res.Passenger.Address),
		res.PaymentMethod,
		res.PaymentStatus,
		res.Status,
		res.RefundPending,
		toNullString(res.PaymentIntentID),
		toNullTime(res.PaymentDeadline),
		toNullString(res.CancelReason),
		res.CreatedAt,
		toNullTime(res.DecidedAt),
		res.UpdatedAt,
		res.Version,
	)

	return err
}

// GetByID retrieves a reservation by ID.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return res, nil
}

// Update writes the mutable fields guarded by the version column.
func (r *ReservationRepository) Update(ctx context.Context, res *domain.Reservation) error {
	query := `
		UPDATE reservations
		SET status = $1, payment_status = $2, refund_pending = $3, payment_intent_id = $4,
			cancel_reason = $5, decided_at = $6, updated_at = $7, version = version + 1
		WHERE id = $8 AND version = $9
	`

	result, err := r.q.ExecContext(ctx, query,
		res.Status,
		res.PaymentStatus,
		res.RefundPending,
		toNullString(res.PaymentIntentID),
		toNullString(res.CancelReason),
		toNullTime(res.DecidedAt),
		res.UpdatedAt,
		res.ID,
		res.Version,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var exists bool
		if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, res.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}

	res.Version++
	return nil
}

// CountHeld returns the number of seat-holding reservations for a trip.
func (r *ReservationRepository) CountHeld(ctx context.Context, tripID string) (int, error) {
	return countHeld(ctx, r.q, tripID)
}

func countHeld(ctx context.Context, q Querier, tripID string) (int, error) {
	var held int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE trip_id = $1 AND status = ANY($2)`,
		tripID, statusArray(domain.HeldStatuses),
	).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("count held seats: %w", err)
	}
	return held, nil
}

// ListByTrip retrieves the reservations of a trip, oldest first.
func (r *ReservationRepository) ListByTrip(ctx context.Context, tripID string, statuses ...domain.ReservationStatus) ([]*domain.Reservation, error) {
	if len(statuses) == 0 {
		return r.list(ctx, `
			SELECT `+reservationColumns+` FROM reservations
			WHERE trip_id = $1 ORDER BY created_at ASC`, tripID)
	}
	return r.list(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE trip_id = $1 AND status = ANY($2) ORDER BY created_at ASC`, tripID, statusArray(statuses))
}

// ListByPassenger retrieves a passenger's reservations, newest first.
func (r *ReservationRepository) ListByPassenger(ctx context.Context, passengerID string, statuses ...domain.ReservationStatus) ([]*domain.Reservation, error) {
	if len(statuses) == 0 {
		return r.list(ctx, `
			SELECT `+reservationColumns+` FROM reservations
			WHERE passenger_id = $1 ORDER BY created_at DESC LIMIT 200`, passengerID)
	}
	return r.list(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE passenger_id = $1 AND status = ANY($2) ORDER BY created_at DESC LIMIT 200`, passengerID, statusArray(statuses))
}

// ListExpiredAwaitingPayment retrieves online checkouts past their payment deadline.
func (r *ReservationRepository) ListExpiredAwaitingPayment(ctx context.Context, before time.Time, limit int) ([]*domain.Reservation, error) {
	return r.list(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = $1 AND payment_deadline < $2
		ORDER BY payment_deadline ASC LIMIT $3`,
		domain.ReservationStatusAwaitingPayment, before, limit)
}

// ListRefundsToRetry retrieves refund-pending reservations with no refund
// accepted by the provider yet.
func (r *ReservationRepository) ListRefundsToRetry(ctx context.Context, limit int) ([]*domain.Reservation, error) {
	return r.list(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE refund_pending = TRUE
		AND NOT EXISTS (
			SELECT 1 FROM payments p
			WHERE p.reservation_id = reservations.id
			AND p.status = $1 AND COALESCE(p.refund_id, '') <> ''
		)
		ORDER BY updated_at ASC LIMIT $2`,
		domain.PaymentRecordRefundPending, limit)
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}

	return reservations, rows.Err()
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	var res domain.Reservation
	var address, intentID, cancelReason sql.NullString
	var deadline, decidedAt sql.NullTime

	err := row.Scan(
		&res.ID,
		&res.TripID,
		&res.Passenger.ID,
		&res.Passenger.Name,
		&res.Passenger.Phone,
		&address,
		&res.PaymentMethod,
		&res.PaymentStatus,
		&res.Status,
		&res.RefundPending,
		&intentID,
		&deadline,
		&cancelReason,
		&res.CreatedAt,
		&decidedAt,
		&res.UpdatedAt,
		&res.Version,
	)
	if err != nil {
		return nil, err
	}

	res.Passenger.Address = address.String
	res.PaymentIntentID = intentID.String
	res.CancelReason = cancelReason.String
	res.PaymentDeadline = fromNullTime(deadline)
	res.DecidedAt = fromNullTime(decidedAt)

	return &res, nil
}

// Ensure ReservationRepository implements repository.ReservationRepository.
var _ repository.ReservationRepository = (*ReservationRepository)(nil)
