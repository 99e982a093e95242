package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wandersure/wandersure-api/internal/models"
)

// SQLitePaymentRepository implements PaymentRepository for SQLite/libsql.
type SQLitePaymentRepository struct {
	db *sql.DB
}

// NewSQLitePaymentRepository creates a new SQLite payment repository.
func NewSQLitePaymentRepository(db *sql.DB) *SQLitePaymentRepository {
	return &SQLitePaymentRepository{db: db}
}

// Create inserts a new payment record. The partial unique index on
// quote_id rejects a second pending-or-completed payment for the same quote.
func (r *SQLitePaymentRepository) Create(ctx context.Context, payment *models.PaymentRecord) error {
	now := time.Now().Format(time.RFC3339)

	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (payment_intent_id, user_id, quote_id, amount_minor, currency, product_name,
			customer_email, payment_status, checkout_url, external_session_id, external_payment_intent,
			failure_reason, created_at, updated_at, expires_at, webhook_processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, payment.PaymentIntentID, payment.UserID, payment.QuoteID, payment.AmountMinor, payment.Currency,
		payment.ProductName, nullIfEmpty(payment.CustomerEmail), string(payment.Status),
		nullIfEmpty(payment.CheckoutURL), nullIfEmpty(payment.ExternalSessionID),
		nullIfEmpty(payment.ExternalPaymentIntent), nullIfEmpty(payment.FailureReason),
		now, now, formatTimePtr(payment.ExpiresAt), formatTimePtr(payment.WebhookProcessedAt))

	return err
}

// GetByID retrieves a payment by its payment intent ID.
func (r *SQLitePaymentRepository) GetByID(ctx context.Context, paymentIntentID string) (*models.PaymentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT payment_intent_id, user_id, quote_id, amount_minor, currency, product_name,
			customer_email, payment_status, checkout_url, external_session_id, external_payment_intent,
			failure_reason, created_at, updated_at, expires_at, webhook_processed_at
		FROM payments
		WHERE payment_intent_id = ?
	`, paymentIntentID)

	return r.scanPayment(row)
}

// GetActiveByQuote retrieves the pending or completed payment for a quote.
// The partial unique index guarantees at most one such row exists.
func (r *SQLitePaymentRepository) GetActiveByQuote(ctx context.Context, quoteID string) (*models.PaymentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT payment_intent_id, user_id, quote_id, amount_minor, currency, product_name,
			customer_email, payment_status, checkout_url, external_session_id, external_payment_intent,
			failure_reason, created_at, updated_at, expires_at, webhook_processed_at
		FROM payments
		WHERE quote_id = ? AND payment_status IN ('pending', 'completed')
	`, quoteID)

	return r.scanPayment(row)
}

// GetByQuote retrieves all payments recorded for a quote, newest first.
func (r *SQLitePaymentRepository) GetByQuote(ctx context.Context, quoteID string) ([]*models.PaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payment_intent_id, user_id, quote_id, amount_minor, currency, product_name,
			customer_email, payment_status, checkout_url, external_session_id, external_payment_intent,
			failure_reason, created_at, updated_at, expires_at, webhook_processed_at
		FROM payments
		WHERE quote_id = ?
		ORDER BY created_at DESC
	`, quoteID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return r.scanPayments(rows)
}

// GetByExternalSession retrieves a payment by the provider checkout session ID.
func (r *SQLitePaymentRepository) GetByExternalSession(ctx context.Context, sessionID string) (*models.PaymentRecord, error) {
	if sessionID == "" {
		return nil, nil
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT payment_intent_id, user_id, quote_id, amount_minor, currency, product_name,
			customer_email, payment_status, checkout_url, external_session_id, external_payment_intent,
			failure_reason, created_at, updated_at, expires_at, webhook_processed_at
		FROM payments
		WHERE external_session_id = ?
	`, sessionID)

	return r.scanPayment(row)
}

// GetByExternalIntent retrieves a payment by the provider payment intent ID.
func (r *SQLitePaymentRepository) GetByExternalIntent(ctx context.Context, externalIntent string) (*models.PaymentRecord, error) {
	if externalIntent == "" {
		return nil, nil
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT payment_intent_id, user_id, quote_id, amount_minor, currency, product_name,
			customer_email, payment_status, checkout_url, external_session_id, external_payment_intent,
			failure_reason, created_at, updated_at, expires_at, webhook_processed_at
		FROM payments
		WHERE external_payment_intent = ?
	`, externalIntent)

	return r.scanPayment(row)
}

// ListByUser retrieves payments for a user, newest first.
func (r *SQLitePaymentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.PaymentRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT payment_intent_id, user_id, quote_id, amount_minor, currency, product_name,
			customer_email, payment_status, checkout_url, external_session_id, external_payment_intent,
			failure_reason, created_at, updated_at, expires_at, webhook_processed_at
		FROM payments
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return r.scanPayments(rows)
}

// AttachCheckoutSession stamps the provider session details onto a record.
// Only session metadata is written here, never payment_status.
func (r *SQLitePaymentRepository) AttachCheckoutSession(ctx context.Context, paymentIntentID, checkoutURL, sessionID string, expiresAt time.Time) error {
	now := time.Now().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET checkout_url = ?, external_session_id = ?, expires_at = ?, updated_at = ?
		WHERE payment_intent_id = ?
	`, checkoutURL, sessionID, expiresAt.Format(time.RFC3339), now, paymentIntentID)

	return err
}

// TransitionStatus moves a pending payment into a terminal state.
// Returns false when the record was not pending, so repeated terminal
// writes stay no-ops.
func (r *SQLitePaymentRepository) TransitionStatus(ctx context.Context, paymentIntentID string, to models.PaymentStatus, failureReason string) (bool, error) {
	if !to.Terminal() {
		return false, fmt.Errorf("cannot transition payment to non-terminal status %q", to)
	}

	now := time.Now().Format(time.RFC3339)

	// NULLIF keeps the stored failure_reason when no new one is supplied.
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET payment_status = ?,
			failure_reason = COALESCE(NULLIF(?, ''), failure_reason),
			updated_at = ?
		WHERE payment_intent_id = ? AND payment_status = 'pending'
	`, string(to), failureReason, now, paymentIntentID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ApplyWebhookTransition moves a pending payment into a terminal state and
// records the provider identifiers delivered with the event in one write.
// A record already in a terminal state is left byte-identical.
func (r *SQLitePaymentRepository) ApplyWebhookTransition(ctx context.Context, paymentIntentID string, to models.PaymentStatus, stamp WebhookStamp) (bool, error) {
	if !to.Terminal() {
		return false, fmt.Errorf("cannot transition payment to non-terminal status %q", to)
	}

	processedAt := stamp.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	now := time.Now().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET payment_status = ?,
			external_session_id = COALESCE(NULLIF(?, ''), external_session_id),
			external_payment_intent = COALESCE(NULLIF(?, ''), external_payment_intent),
			failure_reason = COALESCE(NULLIF(?, ''), failure_reason),
			webhook_processed_at = ?,
			updated_at = ?
		WHERE payment_intent_id = ? AND payment_status = 'pending'
	`, string(to), stamp.SessionID, stamp.ExternalIntent, stamp.FailureReason,
		processedAt.Format(time.RFC3339), now, paymentIntentID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// MarkExpired transitions pending payments whose checkout window has closed.
// Records that never received a session fall back to a created_at cutoff.
func (r *SQLitePaymentRepository) MarkExpired(ctx context.Context, now time.Time, ttl time.Duration) (int64, error) {
	nowStr := now.Format(time.RFC3339)
	cutoff := now.Add(-ttl).Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET payment_status = 'expired', updated_at = ?
		WHERE payment_status = 'pending'
			AND ((expires_at IS NOT NULL AND expires_at <= ?)
				OR (expires_at IS NULL AND created_at <= ?))
	`, nowStr, nowStr, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// scanPayment scans a single row into a PaymentRecord.
func (r *SQLitePaymentRepository) scanPayment(row *sql.Row) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	var status string
	var customerEmail, checkoutURL, externalSession, externalIntent, failureReason sql.NullString
	var createdAt, updatedAt string
	var expiresAt, webhookProcessedAt sql.NullString

	err := row.Scan(
		&payment.PaymentIntentID,
		&payment.UserID,
		&payment.QuoteID,
		&payment.AmountMinor,
		&payment.Currency,
		&payment.ProductName,
		&customerEmail,
		&status,
		&checkoutURL,
		&externalSession,
		&externalIntent,
		&failureReason,
		&createdAt,
		&updatedAt,
		&expiresAt,
		&webhookProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payment.Status = models.PaymentStatus(status)
	payment.CustomerEmail = customerEmail.String
	payment.CheckoutURL = checkoutURL.String
	payment.ExternalSessionID = externalSession.String
	payment.ExternalPaymentIntent = externalIntent.String
	payment.FailureReason = failureReason.String

	payment.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	payment.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	payment.ExpiresAt = parseTimePtr(expiresAt)
	payment.WebhookProcessedAt = parseTimePtr(webhookProcessedAt)

	return &payment, nil
}

// scanPayments scans multiple rows into a PaymentRecord slice.
func (r *SQLitePaymentRepository) scanPayments(rows *sql.Rows) ([]*models.PaymentRecord, error) {
	var payments []*models.PaymentRecord

	for rows.Next() {
		var payment models.PaymentRecord
		var status string
		var customerEmail, checkoutURL, externalSession, externalIntent, failureReason sql.NullString
		var createdAt, updatedAt string
		var expiresAt, webhookProcessedAt sql.NullString

		err := rows.Scan(
			&payment.PaymentIntentID,
			&payment.UserID,
			&payment.QuoteID,
			&payment.AmountMinor,
			&payment.Currency,
			&payment.ProductName,
			&customerEmail,
			&status,
			&checkoutURL,
			&externalSession,
			&externalIntent,
			&failureReason,
			&createdAt,
			&updatedAt,
			&expiresAt,
			&webhookProcessedAt,
		)
		if err != nil {
			return nil, err
		}

		payment.Status = models.PaymentStatus(status)
		payment.CustomerEmail = customerEmail.String
		payment.CheckoutURL = checkoutURL.String
		payment.ExternalSessionID = externalSession.String
		payment.ExternalPaymentIntent = externalIntent.String
		payment.FailureReason = failureReason.String

		payment.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payment.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		payment.ExpiresAt = parseTimePtr(expiresAt)
		payment.WebhookProcessedAt = parseTimePtr(webhookProcessedAt)

		payments = append(payments, &payment)
	}

	return payments, rows.Err()
}

// nullIfEmpty maps empty optional strings to NULL so that indexed lookups
// never match on ''.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// formatTimePtr renders an optional timestamp as RFC3339 or NULL.
func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// parseTimePtr reads an optional RFC3339 column back into a *time.Time.
func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
