package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260810-200000",
		Description: "Webhook event dedupe log",
		Up: []string{
			// Every provider event id is recorded exactly once. Re-delivery
			// hits the primary key and is treated as already processed.
			`CREATE TABLE IF NOT EXISTS webhook_events (
				event_id TEXT PRIMARY KEY,
				event_type TEXT NOT NULL,
				payment_intent_id TEXT,
				received_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_webhook_events_payment ON webhook_events(payment_intent_id)`,
		},
	})
}
