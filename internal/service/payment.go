package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

// IntentRef identifies a provider payment intent. ClientSecret is handed to
// the passenger's client to complete the checkout.
type IntentRef struct {
	IntentID     string
	ClientSecret string
}

// RefundState is the provider's answer to a refund request.
type RefundState string

const (
	RefundSucceeded RefundState = "succeeded"
	RefundPending   RefundState = "pending"
)

// RefundOutcome is the provider's result for a refund request.
type RefundOutcome struct {
	RefundID string
	State    RefundState
}

// PaymentProvider is the external payment processor. Implementations return
// ErrPaymentProviderUnavailable for transient failures and ErrPaymentFailed
// for declines.
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, amount float64, metadata map[string]string) (IntentRef, error)
	Refund(ctx context.Context, intentID string) (RefundOutcome, error)
}

// IdempotencyKeyMetadata is the intent metadata entry providers use to
// collapse repeated creation requests into one intent.
const IdempotencyKeyMetadata = "idempotency_key"

// SandboxProvider is a local provider for development. Intents are always
// created and refunds always succeed.
type SandboxProvider struct {
	mu      sync.Mutex
	intents map[string]IntentRef
}

// NewSandboxProvider creates a new SandboxProvider.
func NewSandboxProvider() *SandboxProvider {
	return &SandboxProvider{intents: make(map[string]IntentRef)}
}

// CreatePaymentIntent returns a sandbox intent, the same one for a repeated
// idempotency key.
func (p *SandboxProvider) CreatePaymentIntent(ctx context.Context, amount float64, metadata map[string]string) (IntentRef, error) {
	if amount < 0 {
		return IntentRef{}, ErrPaymentFailed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := metadata[IdempotencyKeyMetadata]
	if ref, ok := p.intents[key]; ok && key != "" {
		return ref, nil
	}
	id := "pi_" + uuid.New().String()
	ref := IntentRef{IntentID: id, ClientSecret: id + "_secret"}
	if key != "" {
		p.intents[key] = ref
	}
	return ref, nil
}

// Refund settles immediately in the sandbox.
func (p *SandboxProvider) Refund(ctx context.Context, intentID string) (RefundOutcome, error) {
	return RefundOutcome{RefundID: "re_" + uuid.New().String(), State: RefundSucceeded}, nil
}

// PaymentPolicy configures the payment branch.
type PaymentPolicy struct {
	// AutoAcceptPaid moves confirmed online reservations straight to accepted.
	AutoAcceptPaid bool
	RetryAttempts  int
	RetryBase      time.Duration
}

// PaymentService resolves the online payment branch of reservations.
type PaymentService struct {
	reservationRepo repository.ReservationRepository
	paymentRepo     repository.PaymentRepository
	tripRepo        repository.TripRepository
	provider        PaymentProvider
	inventory       *InventoryService
	notifier        *NotificationService
	policy          PaymentPolicy
	logger          *slog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	reservationRepo repository.ReservationRepository,
	paymentRepo repository.PaymentRepository,
	tripRepo repository.TripRepository,
	provider PaymentProvider,
	inventory *InventoryService,
	notifier *NotificationService,
	policy PaymentPolicy,
	logger *slog.Logger,
) *PaymentService {
	if policy.RetryAttempts < 1 {
		policy.RetryAttempts = 1
	}
	return &PaymentService{
		reservationRepo: reservationRepo,
		paymentRepo:     paymentRepo,
		tripRepo:        tripRepo,
		provider:        provider,
		inventory:       inventory,
		notifier:        notifier,
		policy:          policy,
		logger:          logger,
	}
}

func intentIdempotencyKey(reservationID string) string {
	return fmt.Sprintf("intent:%s", reservationID)
}

// CreateIntent opens a provider intent for an online reservation that already
// holds its seat. It must not be called under a trip lock. Repeated calls for
// the same reservation return the same intent. A decline cancels the
// reservation and frees the seat; exhausted retries leave it awaiting payment
// for the expiry sweeper.
func (s *PaymentService) CreateIntent(ctx context.Context, r *domain.Reservation, amount float64) (*IntentRef, error) {
	if r.PaymentMethod != domain.PaymentMethodOnline {
		return nil, ErrInvalidPaymentMethod
	}

	key := intentIdempotencyKey(r.ID)
	existing, err := s.paymentRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &IntentRef{IntentID: existing.IntentID, ClientSecret: existing.ClientSecret}, nil
	}

	ref, err := s.createWithRetry(ctx, amount, map[string]string{
		"reservation_id":       r.ID,
		"trip_id":              r.TripID,
		"passenger_id":         r.Passenger.ID,
		IdempotencyKeyMetadata: key,
	})
	if err != nil {
		if errors.Is(err, ErrPaymentFailed) {
			s.declined(ctx, r.ID, "payment declined")
			return nil, ErrPaymentFailed
		}
		s.logger.Warn("payment_intent_unavailable",
			slog.String("reservation_id", r.ID),
			slog.Any("error", err),
		)
		return nil, err
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:             uuid.New().String(),
		ReservationID:  r.ID,
		IntentID:       ref.IntentID,
		ClientSecret:   ref.ClientSecret,
		Amount:         amount,
		Status:         domain.PaymentRecordProcessing,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("record payment intent: %w", err)
		}
		// A concurrent call recorded its intent first.
		existing, err := s.paymentRepo.GetByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("record payment intent: %w", repository.ErrNotFound)
		}
		if existing.IntentID != ref.IntentID {
			s.logger.Warn("payment_intent_superseded",
				slog.String("reservation_id", r.ID),
				slog.String("intent_id", ref.IntentID),
				slog.String("kept_intent_id", existing.IntentID),
			)
		}
		return &IntentRef{IntentID: existing.IntentID, ClientSecret: existing.ClientSecret}, nil
	}

	_, _, err = mutateReservation(ctx, s.reservationRepo, r.ID, func(r *domain.Reservation) error {
		r.PaymentIntentID = ref.IntentID
		if r.PaymentStatus == domain.PaymentStatusUnpaid {
			r.PaymentStatus = domain.PaymentStatusProcessing
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment_intent_created",
		slog.String("reservation_id", r.ID),
		slog.String("intent_id", ref.IntentID),
	)

	return &ref, nil
}

func (s *PaymentService) createWithRetry(ctx context.Context, amount float64, metadata map[string]string) (IntentRef, error) {
	var lastErr error
	for attempt := 0; attempt < s.policy.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := s.policy.RetryBase * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return IntentRef{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, ctx.Err())
			}
		}

		ref, err := s.provider.CreatePaymentIntent(ctx, amount, metadata)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, ErrPaymentProviderUnavailable) {
			return IntentRef{}, err
		}
		lastErr = err
	}
	return IntentRef{}, lastErr
}

// declined cancels an online reservation whose payment was refused.
func (s *PaymentService) declined(ctx context.Context, reservationID, reason string) {
	result, err := s.inventory.Release(ctx, ReleaseRequest{
		ReservationID: reservationID,
		To:            domain.ReservationStatusCancelled,
		From:          []domain.ReservationStatus{domain.ReservationStatusAwaitingPayment},
		Apply: func(r *domain.Reservation) {
			r.PaymentStatus = domain.PaymentStatusFailed
			r.CancelReason = reason
		},
	})
	if err != nil {
		s.logger.Error("payment_decline_release_failed",
			slog.String("reservation_id", reservationID),
			slog.Any("error", err),
		)
		return
	}
	if result.Released {
		s.notifier.ReservationChanged(ctx, result.Reservation, result.From, domain.SystemActor())
	}
}

// OnConfirmed handles the provider's payment success callback. Duplicate
// callbacks are no-ops. A confirmation for a reservation that was already
// cancelled is refunded.
func (s *PaymentService) OnConfirmed(ctx context.Context, intentID string) (*domain.Reservation, error) {
	payment, err := s.lookupIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	target := domain.ReservationStatusPending
	if s.policy.AutoAcceptPaid && s.tripOpen(ctx, payment.ReservationID) {
		target = domain.ReservationStatusAccepted
	}

	var from domain.ReservationStatus
	var needsRefund bool
	now := time.Now()
	r, changed, err := mutateReservation(ctx, s.reservationRepo, payment.ReservationID, func(r *domain.Reservation) error {
		from = r.Status
		needsRefund = false
		switch {
		case r.Status == domain.ReservationStatusAwaitingPayment:
			if err := r.TransitionTo(target, now); err != nil {
				return err
			}
			r.PaymentStatus = domain.PaymentStatusPaid
			return nil
		case r.Status == domain.ReservationStatusCancelled && r.PaymentStatus != domain.PaymentStatusPaid && r.PaymentStatus != domain.PaymentStatusRefunded:
			r.PaymentStatus = domain.PaymentStatusPaid
			r.UpdatedAt = now
			needsRefund = true
			return nil
		default:
			return errNoChange
		}
	})
	if err != nil {
		return nil, err
	}

	if payment.Status == domain.PaymentRecordProcessing || payment.Status == domain.PaymentRecordFailed {
		payment.Status = domain.PaymentRecordSucceeded
		payment.UpdatedAt = now
		if err := s.paymentRepo.Update(ctx, payment); err != nil {
			return nil, err
		}
	}

	if !changed {
		return r, nil
	}

	s.logger.Info("payment_confirmed",
		slog.String("reservation_id", r.ID),
		slog.String("intent_id", intentID),
		slog.Bool("late", needsRefund),
	)

	if needsRefund {
		if _, err := s.Refund(ctx, r.ID); err != nil {
			return nil, err
		}
		return s.reservationRepo.GetByID(ctx, r.ID)
	}

	s.notifier.ReservationChanged(ctx, r, from, domain.SystemActor())
	return r, nil
}

// OnFailed handles the provider's payment failure callback: the checkout is
// cancelled and its seat released. Duplicates and failures arriving after a
// confirmation are no-ops.
func (s *PaymentService) OnFailed(ctx context.Context, intentID, reason string) (*domain.Reservation, error) {
	payment, err := s.lookupIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "payment failed"
	}

	result, err := s.inventory.Release(ctx, ReleaseRequest{
		ReservationID: payment.ReservationID,
		To:            domain.ReservationStatusCancelled,
		From:          []domain.ReservationStatus{domain.ReservationStatusAwaitingPayment},
		Apply: func(r *domain.Reservation) {
			r.PaymentStatus = domain.PaymentStatusFailed
			r.CancelReason = reason
		},
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Already confirmed: the failure is stale.
			return s.reservationRepo.GetByID(ctx, payment.ReservationID)
		}
		return nil, err
	}

	if payment.Status == domain.PaymentRecordProcessing {
		payment.Status = domain.PaymentRecordFailed
		payment.FailureReason = reason
		payment.UpdatedAt = time.Now()
		if err := s.paymentRepo.Update(ctx, payment); err != nil {
			return nil, err
		}
	}

	if result.Released {
		s.logger.Info("payment_failed",
			slog.String("reservation_id", payment.ReservationID),
			slog.String("intent_id", intentID),
			slog.String("reason", reason),
		)
		s.notifier.ReservationChanged(ctx, result.Reservation, result.From, domain.SystemActor())
	}

	return result.Reservation, nil
}

// RefundResult reports whether a refund is still outstanding.
type RefundResult struct {
	RefundPending bool
	// Requested is true when this call reached the provider.
	Requested bool
}

// Refund asks the provider to refund a paid online reservation. A provider
// error or an asynchronous refund leaves the reservation flagged
// refund-pending; it is never returned as an error.
func (s *PaymentService) Refund(ctx context.Context, reservationID string) (*RefundResult, error) {
	payment, err := s.paymentRepo.GetByReservationID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &RefundResult{}, nil
	}
	if payment.Status == domain.PaymentRecordRefunded {
		// Settled earlier; clear a flag left behind by a failed write.
		_, _, err := mutateReservation(ctx, s.reservationRepo, reservationID, func(r *domain.Reservation) error {
			if !r.RefundPending {
				return errNoChange
			}
			r.PaymentStatus = domain.PaymentStatusRefunded
			r.RefundPending = false
			r.UpdatedAt = time.Now()
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &RefundResult{}, nil
	}
	if payment.RefundRequested() {
		return &RefundResult{RefundPending: true}, nil
	}

	now := time.Now()
	outcome, refundErr := s.provider.Refund(ctx, payment.IntentID)
	settled := refundErr == nil && outcome.State == RefundSucceeded

	if refundErr != nil {
		s.logger.Warn("refund_request_failed",
			slog.String("reservation_id", reservationID),
			slog.String("intent_id", payment.IntentID),
			slog.Any("error", refundErr),
		)
	} else {
		payment.RefundID = outcome.RefundID
	}

	if settled {
		payment.Status = domain.PaymentRecordRefunded
	} else {
		payment.Status = domain.PaymentRecordRefundPending
	}
	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return nil, err
	}

	_, _, err = mutateReservation(ctx, s.reservationRepo, reservationID, func(r *domain.Reservation) error {
		if settled {
			r.PaymentStatus = domain.PaymentStatusRefunded
			r.RefundPending = false
		} else {
			r.RefundPending = true
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund_requested",
		slog.String("reservation_id", reservationID),
		slog.Bool("settled", settled),
	)

	return &RefundResult{RefundPending: !settled, Requested: true}, nil
}

// OnRefunded handles the provider's asynchronous refund confirmation.
func (s *PaymentService) OnRefunded(ctx context.Context, intentID string) (*domain.Reservation, error) {
	payment, err := s.lookupIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if payment.Status != domain.PaymentRecordRefunded {
		payment.Status = domain.PaymentRecordRefunded
		payment.UpdatedAt = now
		if err := s.paymentRepo.Update(ctx, payment); err != nil {
			return nil, err
		}
	}

	r, _, err := mutateReservation(ctx, s.reservationRepo, payment.ReservationID, func(r *domain.Reservation) error {
		if r.PaymentStatus == domain.PaymentStatusRefunded && !r.RefundPending {
			return errNoChange
		}
		r.PaymentStatus = domain.PaymentStatusRefunded
		r.RefundPending = false
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund_settled", slog.String("reservation_id", r.ID))
	return r, nil
}

func (s *PaymentService) lookupIntent(ctx context.Context, intentID string) (*domain.Payment, error) {
	if intentID == "" {
		return nil, ErrInvalidIntentID
	}
	return s.paymentRepo.GetByIntentID(ctx, intentID)
}

func (s *PaymentService) tripOpen(ctx context.Context, reservationID string) bool {
	r, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return false
	}
	trip, err := s.tripRepo.GetByID(ctx, r.TripID)
	if err != nil {
		return false
	}
	return trip.IsBookable()
}
