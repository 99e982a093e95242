package repository

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/wandersure/wandersure-api/internal/database/migrations"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// InsertTestPayment is a helper to insert a payment row directly with an
// explicit status.
func InsertTestPayment(t *testing.T, db *sql.DB, paymentIntentID, userID, quoteID, status string) {
	t.Helper()
	now := time.Now().Format(time.RFC3339)
	query := `
		INSERT INTO payments (payment_intent_id, user_id, quote_id, amount_minor, currency, product_name, payment_status, created_at, updated_at)
		VALUES (?, ?, ?, 4200, 'eur', 'Explorer Annual', ?, ?, ?)
	`
	if _, err := db.Exec(query, paymentIntentID, userID, quoteID, status, now, now); err != nil {
		t.Fatalf("failed to insert test payment: %v", err)
	}
}

// SetPaymentCreatedAt backdates a payment row so ordering and expiry
// behaviour can be exercised deterministically.
func SetPaymentCreatedAt(t *testing.T, db *sql.DB, paymentIntentID string, createdAt time.Time) {
	t.Helper()
	query := `UPDATE payments SET created_at = ? WHERE payment_intent_id = ?`
	if _, err := db.Exec(query, createdAt.Format(time.RFC3339), paymentIntentID); err != nil {
		t.Fatalf("failed to backdate test payment: %v", err)
	}
}
