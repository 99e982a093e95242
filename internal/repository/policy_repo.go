package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wandersure/wandersure-api/internal/models"
)

// SQLitePolicyRepository implements PolicyRepository for SQLite/libsql.
type SQLitePolicyRepository struct {
	db *sql.DB
}

// NewSQLitePolicyRepository creates a new SQLite policy repository.
func NewSQLitePolicyRepository(db *sql.DB) *SQLitePolicyRepository {
	return &SQLitePolicyRepository{db: db}
}

// Create inserts an issued policy. The unique index on payment_intent_id
// turns a concurrent second issuance into a unique violation.
func (r *SQLitePolicyRepository) Create(ctx context.Context, policy *models.PolicyRecord) error {
	if policy.PolicyID == "" {
		policy.PolicyID = ulid.Make().String()
	}
	if policy.IssuedAt.IsZero() {
		policy.IssuedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO policies (policy_id, payment_intent_id, policy_number, external_purchase_id,
			product_name, issuance_status, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, policy.PolicyID, policy.PaymentIntentID, policy.PolicyNumber,
		nullIfEmpty(policy.ExternalPurchaseID), policy.ProductName, policy.IssuanceStatus,
		policy.IssuedAt.Format(time.RFC3339))

	return err
}

// GetByPaymentIntent retrieves the policy issued for a payment.
func (r *SQLitePolicyRepository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.PolicyRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT policy_id, payment_intent_id, policy_number, external_purchase_id,
			product_name, issuance_status, issued_at
		FROM policies
		WHERE payment_intent_id = ?
	`, paymentIntentID)

	return r.scanPolicy(row)
}

// scanPolicy scans a single row into a PolicyRecord.
func (r *SQLitePolicyRepository) scanPolicy(row *sql.Row) (*models.PolicyRecord, error) {
	var policy models.PolicyRecord
	var externalPurchaseID sql.NullString
	var issuedAt string

	err := row.Scan(
		&policy.PolicyID,
		&policy.PaymentIntentID,
		&policy.PolicyNumber,
		&externalPurchaseID,
		&policy.ProductName,
		&policy.IssuanceStatus,
		&issuedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	policy.ExternalPurchaseID = externalPurchaseID.String
	policy.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)

	return &policy, nil
}
