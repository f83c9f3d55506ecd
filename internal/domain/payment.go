package domain

import "time"

// PaymentRecordStatus tracks a provider payment intent and its refund.
type PaymentRecordStatus string

const (
	PaymentRecordProcessing    PaymentRecordStatus = "processing"
	PaymentRecordSucceeded     PaymentRecordStatus = "succeeded"
	PaymentRecordFailed        PaymentRecordStatus = "failed"
	PaymentRecordRefundPending PaymentRecordStatus = "refund_pending"
	PaymentRecordRefunded      PaymentRecordStatus = "refunded"
)

// Payment is the local record of an online payment intent for a reservation.
type Payment struct {
	ID             string
	ReservationID  string
	IntentID       string
	ClientSecret   string
	Amount         float64
	Status         PaymentRecordStatus
	RefundID       string
	FailureReason  string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RefundRequested reports whether the provider already accepted a refund
// request that has not settled yet.
func (p *Payment) RefundRequested() bool {
	return p.Status == PaymentRecordRefundPending && p.RefundID != ""
}
