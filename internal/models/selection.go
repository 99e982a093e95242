package models

import "time"

// PricingSchemaVersion stamps stored pricing payloads so the issuance call
// can detect upstream format drift.
const PricingSchemaVersion = 1

// InsuredParty is one traveller covered by a selection. Stored encrypted.
type InsuredParty struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DateOfBirth    string `json:"date_of_birth"`
	PassportNumber string `json:"passport_number,omitempty"`
}

// Contact is the policyholder contact payload. Stored encrypted.
type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// SelectionRecord captures the offer a user selected, everything the
// issuance call needs later. InsuredEnc and ContactEnc hold sealed JSON;
// PricingJSON keeps the raw pricing response with a schema_version stamp.
type SelectionRecord struct {
	SelectionID          string    `json:"selection_id"`
	QuoteID              string    `json:"quote_id"`
	UserID               string    `json:"user_id"`
	OfferID              string    `json:"offer_id,omitempty"`
	ProductName          string    `json:"product_name"`
	QuotationRef         string    `json:"quotation_ref,omitempty"`
	InsuredEnc           string    `json:"-"`
	ContactEnc           string    `json:"-"`
	PricingJSON          string    `json:"-"`
	PricingSchemaVersion int       `json:"-"`
	PaymentIntentID      string    `json:"payment_intent_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
