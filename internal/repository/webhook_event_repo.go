package repository

import (
	"context"
	"database/sql"
	"time"
)

// SQLiteWebhookEventRepository implements WebhookEventRepository for
// SQLite/libsql.
type SQLiteWebhookEventRepository struct {
	db *sql.DB
}

// NewSQLiteWebhookEventRepository creates a new SQLite webhook event repository.
func NewSQLiteWebhookEventRepository(db *sql.DB) *SQLiteWebhookEventRepository {
	return &SQLiteWebhookEventRepository{db: db}
}

// Record stores a processed event id. Re-delivery hits the primary key, is
// ignored, and reports false so the caller can skip the event.
func (r *SQLiteWebhookEventRepository) Record(ctx context.Context, eventID, eventType, paymentIntentID string) (bool, error) {
	now := time.Now().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO webhook_events (event_id, event_type, payment_intent_id, received_at)
		VALUES (?, ?, ?, ?)
	`, eventID, eventType, nullIfEmpty(paymentIntentID), now)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}
