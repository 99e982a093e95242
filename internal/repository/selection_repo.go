package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wandersure/wandersure-api/internal/models"
)

// SQLiteSelectionRepository implements SelectionRepository for SQLite/libsql.
type SQLiteSelectionRepository struct {
	db *sql.DB
}

// NewSQLiteSelectionRepository creates a new SQLite selection repository.
func NewSQLiteSelectionRepository(db *sql.DB) *SQLiteSelectionRepository {
	return &SQLiteSelectionRepository{db: db}
}

// Upsert writes the selection for a quote. Re-selecting replaces the earlier
// choice for the same quote and clears any stale payment link unless the
// caller carries one forward.
func (r *SQLiteSelectionRepository) Upsert(ctx context.Context, selection *models.SelectionRecord) error {
	now := time.Now().Format(time.RFC3339)

	if selection.SelectionID == "" {
		selection.SelectionID = ulid.Make().String()
	}
	if selection.PricingSchemaVersion == 0 {
		selection.PricingSchemaVersion = models.PricingSchemaVersion
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO selections (selection_id, quote_id, user_id, offer_id, product_name, quotation_ref,
			insured_encrypted, contact_encrypted, pricing_json, pricing_schema_version, payment_intent_id,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(quote_id) DO UPDATE SET
			offer_id = excluded.offer_id,
			product_name = excluded.product_name,
			quotation_ref = excluded.quotation_ref,
			insured_encrypted = excluded.insured_encrypted,
			contact_encrypted = excluded.contact_encrypted,
			pricing_json = excluded.pricing_json,
			pricing_schema_version = excluded.pricing_schema_version,
			payment_intent_id = excluded.payment_intent_id,
			updated_at = excluded.updated_at
	`, selection.SelectionID, selection.QuoteID, selection.UserID, nullIfEmpty(selection.OfferID),
		selection.ProductName, nullIfEmpty(selection.QuotationRef), nullIfEmpty(selection.InsuredEnc),
		nullIfEmpty(selection.ContactEnc), nullIfEmpty(selection.PricingJSON),
		selection.PricingSchemaVersion, nullIfEmpty(selection.PaymentIntentID), now, now)

	return err
}

// GetByQuote retrieves the selection for a quote.
func (r *SQLiteSelectionRepository) GetByQuote(ctx context.Context, quoteID string) (*models.SelectionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT selection_id, quote_id, user_id, offer_id, product_name, quotation_ref,
			insured_encrypted, contact_encrypted, pricing_json, pricing_schema_version, payment_intent_id,
			created_at, updated_at
		FROM selections
		WHERE quote_id = ?
	`, quoteID)

	return r.scanSelection(row)
}

// GetByPaymentIntent retrieves the selection linked to a payment.
func (r *SQLiteSelectionRepository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.SelectionRecord, error) {
	if paymentIntentID == "" {
		return nil, nil
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT selection_id, quote_id, user_id, offer_id, product_name, quotation_ref,
			insured_encrypted, contact_encrypted, pricing_json, pricing_schema_version, payment_intent_id,
			created_at, updated_at
		FROM selections
		WHERE payment_intent_id = ?
	`, paymentIntentID)

	return r.scanSelection(row)
}

// AttachPaymentIntent links the selection for a quote to an initiated payment.
func (r *SQLiteSelectionRepository) AttachPaymentIntent(ctx context.Context, quoteID, paymentIntentID string) error {
	now := time.Now().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx, `
		UPDATE selections
		SET payment_intent_id = ?, updated_at = ?
		WHERE quote_id = ?
	`, paymentIntentID, now, quoteID)

	return err
}

// scanSelection scans a single row into a SelectionRecord.
func (r *SQLiteSelectionRepository) scanSelection(row *sql.Row) (*models.SelectionRecord, error) {
	var selection models.SelectionRecord
	var offerID, quotationRef, insuredEnc, contactEnc, pricingJSON, paymentIntentID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&selection.SelectionID,
		&selection.QuoteID,
		&selection.UserID,
		&offerID,
		&selection.ProductName,
		&quotationRef,
		&insuredEnc,
		&contactEnc,
		&pricingJSON,
		&selection.PricingSchemaVersion,
		&paymentIntentID,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	selection.OfferID = offerID.String
	selection.QuotationRef = quotationRef.String
	selection.InsuredEnc = insuredEnc.String
	selection.ContactEnc = contactEnc.String
	selection.PricingJSON = pricingJSON.String
	selection.PaymentIntentID = paymentIntentID.String

	selection.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	selection.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &selection, nil
}
