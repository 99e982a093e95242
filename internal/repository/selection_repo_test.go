package repository

import (
	"context"
	"testing"

	"github.com/wandersure/wandersure-api/internal/models"
)

// ========================================
// SelectionRepository Tests
// ========================================

func TestSelectionRepository_UpsertAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	selection := &models.SelectionRecord{
		QuoteID:      "quote-sel-1",
		UserID:       "user-1",
		OfferID:      "offer-basic",
		ProductName:  "Explorer Annual",
		QuotationRef: "qref-001",
		InsuredEnc:   "sealed-insured",
		ContactEnc:   "sealed-contact",
		PricingJSON:  `{"total_price":42.00}`,
	}

	if err := repos.Selection.Upsert(ctx, selection); err != nil {
		t.Fatalf("failed to upsert selection: %v", err)
	}
	if selection.SelectionID == "" {
		t.Error("expected SelectionID to be generated")
	}

	fetched, err := repos.Selection.GetByQuote(ctx, "quote-sel-1")
	if err != nil {
		t.Fatalf("failed to fetch selection: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected selection, got nil")
	}
	if fetched.OfferID != "offer-basic" {
		t.Errorf("OfferID = %q, want offer-basic", fetched.OfferID)
	}
	if fetched.QuotationRef != "qref-001" {
		t.Errorf("QuotationRef = %q, want qref-001", fetched.QuotationRef)
	}
	if fetched.InsuredEnc != "sealed-insured" {
		t.Errorf("InsuredEnc = %q, want sealed-insured", fetched.InsuredEnc)
	}
	if fetched.PricingSchemaVersion != models.PricingSchemaVersion {
		t.Errorf("PricingSchemaVersion = %d, want %d", fetched.PricingSchemaVersion, models.PricingSchemaVersion)
	}
}

func TestSelectionRepository_GetMissing(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	fetched, err := repos.Selection.GetByQuote(ctx, "quote-nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched != nil {
		t.Errorf("expected nil for missing selection, got %+v", fetched)
	}
}

func TestSelectionRepository_UpsertReplaces(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	first := &models.SelectionRecord{
		QuoteID:     "quote-sel-2",
		UserID:      "user-1",
		OfferID:     "offer-basic",
		ProductName: "Explorer Annual",
	}
	if err := repos.Selection.Upsert(ctx, first); err != nil {
		t.Fatalf("failed to upsert first selection: %v", err)
	}

	second := &models.SelectionRecord{
		QuoteID:     "quote-sel-2",
		UserID:      "user-1",
		OfferID:     "offer-premium",
		ProductName: "Explorer Premium",
	}
	if err := repos.Selection.Upsert(ctx, second); err != nil {
		t.Fatalf("failed to upsert second selection: %v", err)
	}

	fetched, err := repos.Selection.GetByQuote(ctx, "quote-sel-2")
	if err != nil {
		t.Fatalf("failed to fetch selection: %v", err)
	}
	if fetched.OfferID != "offer-premium" {
		t.Errorf("OfferID = %q, want offer-premium", fetched.OfferID)
	}
	if fetched.ProductName != "Explorer Premium" {
		t.Errorf("ProductName = %q, want Explorer Premium", fetched.ProductName)
	}
	// The stored row survives; only its choice fields are replaced.
	if fetched.SelectionID != first.SelectionID {
		t.Errorf("SelectionID = %q, want original %q", fetched.SelectionID, first.SelectionID)
	}
}

func TestSelectionRepository_AttachPaymentIntent(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	selection := &models.SelectionRecord{
		QuoteID:     "quote-sel-3",
		UserID:      "user-1",
		OfferID:     "offer-basic",
		ProductName: "Explorer Annual",
	}
	if err := repos.Selection.Upsert(ctx, selection); err != nil {
		t.Fatalf("failed to upsert selection: %v", err)
	}

	if err := repos.Selection.AttachPaymentIntent(ctx, "quote-sel-3", "pi-attach-1"); err != nil {
		t.Fatalf("failed to attach payment intent: %v", err)
	}

	fetched, err := repos.Selection.GetByPaymentIntent(ctx, "pi-attach-1")
	if err != nil {
		t.Fatalf("failed to fetch by payment intent: %v", err)
	}
	if fetched == nil || fetched.QuoteID != "quote-sel-3" {
		t.Fatalf("expected quote-sel-3, got %+v", fetched)
	}
	if fetched.PaymentIntentID != "pi-attach-1" {
		t.Errorf("PaymentIntentID = %q, want pi-attach-1", fetched.PaymentIntentID)
	}

	fetched, err = repos.Selection.GetByPaymentIntent(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched != nil {
		t.Errorf("expected nil for empty payment intent, got %+v", fetched)
	}
}
