package postgres

import (
	"context"
	"database/sql"
	"errors"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `id, reservation_id, intent_id, client_secret, amount, status, refund_id, failure_reason, idempotency_key, created_at, updated_at`

// Create persists a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.ExecContext(ctx, query,
		payment.ID,
		payment.ReservationID,
		payment.IntentID,
		toNullString(payment.ClientSecret),
		payment.Amount,
		payment.Status,
		toNullString(payment.RefundID),
		toNullString(payment.FailureReason),
		payment.IdempotencyKey,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}

	return err
}

// GetByIdempotencyKey retrieves a payment by its idempotency key.
// Returns nil if no payment exists with the given key.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	payment, err := r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return payment, err
}

// GetByIntentID retrieves a payment by the provider's intent ID.
func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE intent_id = $1`, intentID)
}

// GetByReservationID retrieves the payment of a reservation.
// Returns nil if the reservation never created an intent.
func (r *PaymentRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error) {
	payment, err := r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reservation_id = $1`, reservationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return payment, err
}

// Update persists status, refund and failure fields of a payment.
func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, refund_id = $2, failure_reason = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.q.ExecContext(ctx, query,
		payment.Status,
		toNullString(payment.RefundID),
		toNullString(payment.FailureReason),
		payment.UpdatedAt,
		payment.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg string) (*domain.Payment, error) {
	var payment domain.Payment
	var clientSecret, refundID, failureReason sql.NullString

	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&payment.ID,
		&payment.ReservationID,
		&payment.IntentID,
		&clientSecret,
		&payment.Amount,
		&payment.Status,
		&refundID,
		&failureReason,
		&payment.IdempotencyKey,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	payment.ClientSecret = clientSecret.String
	payment.RefundID = refundID.String
	payment.FailureReason = failureReason.String

	return &payment, nil
}

// Ensure PaymentRepository implements repository.PaymentRepository.
var _ repository.PaymentRepository = (*PaymentRepository)(nil)
