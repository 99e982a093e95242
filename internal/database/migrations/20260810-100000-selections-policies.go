package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260810-100000",
		Description: "Selections and issued policies",
		Up: []string{
			// Selections capture the offer a user chose plus everything the
			// issuance call needs later. Insured-party and contact payloads
			// are sealed before they reach this table.
			`CREATE TABLE IF NOT EXISTS selections (
				selection_id TEXT PRIMARY KEY,
				quote_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				offer_id TEXT,
				product_name TEXT NOT NULL,
				quotation_ref TEXT,
				insured_encrypted TEXT,
				contact_encrypted TEXT,
				pricing_json TEXT,
				pricing_schema_version INTEGER NOT NULL DEFAULT 1,
				payment_intent_id TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_selections_quote ON selections(quote_id)`,
			`CREATE INDEX IF NOT EXISTS idx_selections_payment ON selections(payment_intent_id)`,
			`CREATE INDEX IF NOT EXISTS idx_selections_user ON selections(user_id)`,

			`CREATE TABLE IF NOT EXISTS policies (
				policy_id TEXT PRIMARY KEY,
				payment_intent_id TEXT NOT NULL,
				policy_number TEXT NOT NULL,
				external_purchase_id TEXT,
				product_name TEXT NOT NULL,
				issuance_status TEXT NOT NULL,
				issued_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_policies_payment ON policies(payment_intent_id)`,
		},
	})
}
