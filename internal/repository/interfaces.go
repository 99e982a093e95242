// Package repository defines repository interfaces for payment, selection,
// policy, and webhook event data access.
// Note: quotes themselves live with the upstream pricing API; only the
// records the payment orchestrator owns are persisted here.
package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/wandersure/wandersure-api/internal/models"
)

// WebhookStamp carries the provider-side identifiers delivered with a
// checkout webhook event. Empty fields leave the stored column untouched.
type WebhookStamp struct {
	SessionID      string
	ExternalIntent string
	FailureReason  string
	ProcessedAt    time.Time
}

// PaymentRepository defines methods for payment record data access.
// Payments are the local system of record for checkout activity; only the
// payment service and the webhook receiver go through this interface.
type PaymentRepository interface {
	// Create inserts a new pending payment. A second active payment for the
	// same quote trips the partial unique index; callers detect that with
	// IsUniqueViolation and look up the winner via GetActiveByQuote.
	Create(ctx context.Context, payment *models.PaymentRecord) error
	GetByID(ctx context.Context, paymentIntentID string) (*models.PaymentRecord, error)
	// GetActiveByQuote returns the pending or completed payment for a quote,
	// or nil when the quote has no active payment.
	GetActiveByQuote(ctx context.Context, quoteID string) (*models.PaymentRecord, error)
	GetByQuote(ctx context.Context, quoteID string) ([]*models.PaymentRecord, error)
	GetByExternalSession(ctx context.Context, sessionID string) (*models.PaymentRecord, error)
	GetByExternalIntent(ctx context.Context, externalIntent string) (*models.PaymentRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.PaymentRecord, error)
	// AttachCheckoutSession stamps the provider session onto a record that is
	// still pending.
	AttachCheckoutSession(ctx context.Context, paymentIntentID, checkoutURL, sessionID string, expiresAt time.Time) error
	// TransitionStatus moves a pending payment to a terminal state. Returns
	// false when no pending row matched, which callers treat as a terminal
	// no-op after re-reading the record.
	TransitionStatus(ctx context.Context, paymentIntentID string, to models.PaymentStatus, failureReason string) (bool, error)
	// ApplyWebhookTransition is TransitionStatus plus the webhook bookkeeping
	// columns, written in a single statement.
	ApplyWebhookTransition(ctx context.Context, paymentIntentID string, to models.PaymentStatus, stamp WebhookStamp) (bool, error)
	// MarkExpired transitions pending payments whose checkout window has
	// closed. Records that never received a session expire once older than
	// ttl. Returns the number of rows transitioned.
	MarkExpired(ctx context.Context, now time.Time, ttl time.Duration) (int64, error)
}

// SelectionRepository defines methods for selection data access.
// A selection is the offer a user chose for a quote, with the sealed
// insured-party and contact payloads the issuance call needs later.
type SelectionRepository interface {
	// Upsert writes the selection for a quote, replacing any earlier choice.
	Upsert(ctx context.Context, selection *models.SelectionRecord) error
	GetByQuote(ctx context.Context, quoteID string) (*models.SelectionRecord, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.SelectionRecord, error)
	// AttachPaymentIntent links the selection for a quote to the payment that
	// was initiated for it.
	AttachPaymentIntent(ctx context.Context, quoteID, paymentIntentID string) error
}

// PolicyRepository defines methods for issued policy data access.
type PolicyRepository interface {
	// Create inserts an issued policy. The unique index on payment_intent_id
	// makes a second issuance for the same payment surface as a unique
	// violation; callers re-read with GetByPaymentIntent.
	Create(ctx context.Context, policy *models.PolicyRecord) error
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.PolicyRecord, error)
}

// WebhookEventRepository tracks processed provider webhook events so that
// re-deliveries are recognised and skipped.
type WebhookEventRepository interface {
	// Record stores the event id and reports whether this is the first
	// delivery. false means the event was seen before.
	Record(ctx context.Context, eventID, eventType, paymentIntentID string) (bool, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Payment      PaymentRepository
	Selection    SelectionRepository
	Policy       PolicyRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Payment:      NewSQLitePaymentRepository(db),
		Selection:    NewSQLiteSelectionRepository(db),
		Policy:       NewSQLitePolicyRepository(db),
		WebhookEvent: NewSQLiteWebhookEventRepository(db),
	}
}

// IsUniqueViolation reports whether err is a SQLite unique constraint
// failure, such as losing the race on the active-payment-per-quote index.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
