package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260810-000000",
		Description: "Payments table with uniqueness-of-activity index",
		Up: []string{
			// Local system of record for checkout activity. payment_intent_id
			// is generated by the orchestrator, never by the provider.
			`CREATE TABLE IF NOT EXISTS payments (
				payment_intent_id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				quote_id TEXT NOT NULL,
				amount_minor INTEGER NOT NULL,
				currency TEXT NOT NULL,
				product_name TEXT NOT NULL,
				customer_email TEXT,
				payment_status TEXT NOT NULL DEFAULT 'pending',
				checkout_url TEXT,
				external_session_id TEXT,
				external_payment_intent TEXT,
				failure_reason TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				expires_at TEXT,
				webhook_processed_at TEXT
			)`,

			// At most one pending-or-completed payment per quote. Concurrent
			// initiates race on this index; losers surface as duplicates.
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_active_quote
				ON payments(quote_id)
				WHERE payment_status IN ('pending', 'completed')`,

			`CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_quote_id ON payments(quote_id)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_external_session ON payments(external_session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_external_intent ON payments(external_payment_intent)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_status_expires ON payments(payment_status, expires_at)`,
		},
	})
}
