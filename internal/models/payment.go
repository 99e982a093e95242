package models

import "time"

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// ActivePaymentStatuses are the states that count toward the
// one-active-payment-per-quote rule.
var ActivePaymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusCompleted}

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed,
		PaymentStatusExpired, PaymentStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a sink state. Terminal records never change
// status again; repeated terminal writes are no-ops.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentStatusPending && s.Valid()
}

// CanTransition reports whether from -> to is a legal status change.
// Pending moves to any terminal state; nothing leaves a terminal state.
func CanTransition(from, to PaymentStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return from == PaymentStatusPending && to.Terminal()
}

// PaymentRecord is the local system of record for one payment activity.
// PaymentIntentID is generated server-side before any call to the payment
// provider; the provider's checkout session carries it as the client
// reference so webhook events can be correlated back.
type PaymentRecord struct {
	PaymentIntentID       string        `json:"payment_intent_id"`
	UserID                string        `json:"user_id"`
	QuoteID               string        `json:"quote_id"`
	AmountMinor           int64         `json:"amount_minor"` // minor currency units
	Currency              string        `json:"currency"`
	ProductName           string        `json:"product_name"`
	CustomerEmail         string        `json:"customer_email,omitempty"`
	Status                PaymentStatus `json:"payment_status"`
	CheckoutURL           string        `json:"checkout_url,omitempty"`
	ExternalSessionID     string        `json:"external_session_id,omitempty"`
	ExternalPaymentIntent string        `json:"external_payment_intent,omitempty"`
	FailureReason         string        `json:"failure_reason,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
	ExpiresAt             *time.Time    `json:"expires_at,omitempty"`
	WebhookProcessedAt    *time.Time    `json:"webhook_processed_at,omitempty"`
}

// Amount returns the amount in major currency units.
func (p *PaymentRecord) Amount() float64 {
	return float64(p.AmountMinor) / 100
}
