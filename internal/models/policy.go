package models

import "time"

// Issuance states for a policy record.
const (
	// IssuanceConfirmed means the upstream insurer accepted the purchase.
	IssuanceConfirmed = "confirmed"
	// IssuanceDeferred means the local policy exists but the upstream
	// purchase call failed and needs operator follow-up.
	IssuanceDeferred = "deferred"
)

// PolicyRecord is the locally issued policy for a completed payment.
type PolicyRecord struct {
	PolicyID           string    `json:"policy_id"`
	PaymentIntentID    string    `json:"payment_intent_id"`
	PolicyNumber       string    `json:"policy_number"`
	ExternalPurchaseID string    `json:"external_purchase_id,omitempty"`
	ProductName        string    `json:"product_name"`
	IssuanceStatus     string    `json:"issuance_status"`
	IssuedAt           time.Time `json:"issued_at"`
}
