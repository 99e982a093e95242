package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wandersure/wandersure-api/internal/config"
	"github.com/wandersure/wandersure-api/internal/crypto"
	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/models"
	"github.com/wandersure/wandersure-api/internal/quotation"
	"github.com/wandersure/wandersure-api/internal/repository"
)

// mockPaymentRepository implements repository.PaymentRepository for testing
type mockPaymentRepository struct {
	mu        sync.RWMutex
	payments  map[string]*models.PaymentRecord
	order     []string
	createErr error
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{
		payments: make(map[string]*models.PaymentRecord),
	}
}

func (m *mockPaymentRepository) Create(ctx context.Context, payment *models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, p := range m.payments {
		if p.QuoteID == payment.QuoteID && (p.Status == models.PaymentStatusPending || p.Status == models.PaymentStatusCompleted) {
			return errors.New("UNIQUE constraint failed: payments.quote_id")
		}
	}
	stored := *payment
	if stored.Status == "" {
		stored.Status = models.PaymentStatusPending
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.payments[stored.PaymentIntentID] = &stored
	m.order = append(m.order, stored.PaymentIntentID)
	return nil
}

func (m *mockPaymentRepository) GetByID(ctx context.Context, paymentIntentID string) (*models.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.payments[paymentIntentID]; ok {
		// Return a copy to avoid data races
		copy := *p
		return &copy, nil
	}
	return nil, nil
}

func (m *mockPaymentRepository) GetActiveByQuote(ctx context.Context, quoteID string) (*models.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.QuoteID == quoteID && (p.Status == models.PaymentStatusPending || p.Status == models.PaymentStatusCompleted) {
			copy := *p
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *mockPaymentRepository) GetByQuote(ctx context.Context, quoteID string) ([]*models.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*models.PaymentRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.payments[m.order[i]]
		if p.QuoteID == quoteID {
			copy := *p
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *mockPaymentRepository) GetByExternalSession(ctx context.Context, sessionID string) (*models.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessionID == "" {
		return nil, nil
	}
	for _, p := range m.payments {
		if p.ExternalSessionID == sessionID {
			copy := *p
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *mockPaymentRepository) GetByExternalIntent(ctx context.Context, externalIntent string) (*models.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if externalIntent == "" {
		return nil, nil
	}
	for _, p := range m.payments {
		if p.ExternalPaymentIntent == externalIntent {
			copy := *p
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *mockPaymentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var result []*models.PaymentRecord
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		p := m.payments[m.order[i]]
		if p.UserID == userID {
			copy := *p
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *mockPaymentRepository) AttachCheckoutSession(ctx context.Context, paymentIntentID, checkoutURL, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[paymentIntentID]; ok {
		p.CheckoutURL = checkoutURL
		p.ExternalSessionID = sessionID
		p.ExpiresAt = &expiresAt
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockPaymentRepository) TransitionStatus(ctx context.Context, paymentIntentID string, to models.PaymentStatus, failureReason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentIntentID]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = to
	if failureReason != "" {
		p.FailureReason = failureReason
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockPaymentRepository) ApplyWebhookTransition(ctx context.Context, paymentIntentID string, to models.PaymentStatus, stamp repository.WebhookStamp) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentIntentID]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = to
	if stamp.SessionID != "" {
		p.ExternalSessionID = stamp.SessionID
	}
	if stamp.ExternalIntent != "" {
		p.ExternalPaymentIntent = stamp.ExternalIntent
	}
	if stamp.FailureReason != "" {
		p.FailureReason = stamp.FailureReason
	}
	processedAt := stamp.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	p.WebhookProcessedAt = &processedAt
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockPaymentRepository) MarkExpired(ctx context.Context, now time.Time, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-ttl)
	var count int64
	for _, p := range m.payments {
		if p.Status != models.PaymentStatusPending {
			continue
		}
		expired := (p.ExpiresAt != nil && !p.ExpiresAt.After(now)) ||
			(p.ExpiresAt == nil && !p.CreatedAt.After(cutoff))
		if expired {
			p.Status = models.PaymentStatusExpired
			count++
		}
	}
	return count, nil
}

func (m *mockPaymentRepository) SetExpiry(paymentIntentID string, expiresAt *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[paymentIntentID]; ok {
		p.ExpiresAt = expiresAt
	}
}

// mockSelectionRepository implements repository.SelectionRepository for testing
type mockSelectionRepository struct {
	mu         sync.RWMutex
	selections map[string]*models.SelectionRecord
}

func newMockSelectionRepository() *mockSelectionRepository {
	return &mockSelectionRepository{
		selections: make(map[string]*models.SelectionRecord),
	}
}

func (m *mockSelectionRepository) Upsert(ctx context.Context, selection *models.SelectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *selection
	if existing, ok := m.selections[selection.QuoteID]; ok {
		stored.SelectionID = existing.SelectionID
	} else if stored.SelectionID == "" {
		stored.SelectionID = "sel_" + strconv.Itoa(len(m.selections)+1)
	}
	if stored.PricingSchemaVersion == 0 {
		stored.PricingSchemaVersion = models.PricingSchemaVersion
	}
	m.selections[selection.QuoteID] = &stored
	return nil
}

func (m *mockSelectionRepository) GetByQuote(ctx context.Context, quoteID string) (*models.SelectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.selections[quoteID]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, nil
}

func (m *mockSelectionRepository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.SelectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if paymentIntentID == "" {
		return nil, nil
	}
	for _, s := range m.selections {
		if s.PaymentIntentID == paymentIntentID {
			copy := *s
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *mockSelectionRepository) AttachPaymentIntent(ctx context.Context, quoteID, paymentIntentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.selections[quoteID]; ok {
		s.PaymentIntentID = paymentIntentID
	}
	return nil
}

// mockPolicyRepository implements repository.PolicyRepository for testing
type mockPolicyRepository struct {
	mu       sync.RWMutex
	policies map[string]*models.PolicyRecord
}

func newMockPolicyRepository() *mockPolicyRepository {
	return &mockPolicyRepository{
		policies: make(map[string]*models.PolicyRecord),
	}
}

func (m *mockPolicyRepository) Create(ctx context.Context, policy *models.PolicyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[policy.PaymentIntentID]; ok {
		return errors.New("UNIQUE constraint failed: policies.payment_intent_id")
	}
	stored := *policy
	if stored.PolicyID == "" {
		stored.PolicyID = "pol_" + strconv.Itoa(len(m.policies)+1)
		policy.PolicyID = stored.PolicyID
	}
	if stored.IssuedAt.IsZero() {
		stored.IssuedAt = time.Now()
	}
	m.policies[stored.PaymentIntentID] = &stored
	return nil
}

func (m *mockPolicyRepository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.PolicyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.policies[paymentIntentID]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, nil
}

// mockWebhookEventRepository implements repository.WebhookEventRepository for testing
type mockWebhookEventRepository struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMockWebhookEventRepository() *mockWebhookEventRepository {
	return &mockWebhookEventRepository{
		seen: make(map[string]bool),
	}
}

func (m *mockWebhookEventRepository) Record(ctx context.Context, eventID, eventType, paymentIntentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

// fakeCheckout implements CheckoutProvider for testing
type fakeCheckout struct {
	mu        sync.Mutex
	created   []CheckoutParams
	expired   []string
	createErr error
	expireErr error
	onCreate  func(CheckoutParams)
}

func (f *fakeCheckout) CreateSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	f.mu.Lock()
	hook := f.onCreate
	f.mu.Unlock()
	if hook != nil {
		hook(params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, params)
	return &CheckoutSession{
		SessionID:   "cs_test_" + params.PaymentIntentID,
		CheckoutURL: "https://checkout.example.com/pay/" + params.PaymentIntentID,
		ExpiresAt:   params.ExpiresAt,
	}, nil
}

func (f *fakeCheckout) ExpireSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expireErr != nil {
		return f.expireErr
	}
	f.expired = append(f.expired, sessionID)
	return nil
}

// fakeIssuance implements IssuanceClient for testing
type fakeIssuance struct {
	mu          sync.Mutex
	requests    []quotation.PurchaseRequest
	response    *quotation.PurchaseResponse
	purchaseErr error
}

func (f *fakeIssuance) Purchase(ctx context.Context, req quotation.PurchaseRequest) (*quotation.PurchaseResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	if f.response != nil {
		return f.response, nil
	}
	return &quotation.PurchaseResponse{
		PurchaseID:   "ext-pur-1",
		PolicyNumber: "POL-2026-0001",
		Status:       "issued",
	}, nil
}

type paymentServiceMocks struct {
	payments   *mockPaymentRepository
	selections *mockSelectionRepository
	policies   *mockPolicyRepository
	events     *mockWebhookEventRepository
	checkout   *fakeCheckout
	issuance   *fakeIssuance
}

// Test helper to create a new test payment service
func newTestPaymentService(t *testing.T) (*PaymentService, *paymentServiceMocks) {
	t.Helper()

	mocks := &paymentServiceMocks{
		payments:   newMockPaymentRepository(),
		selections: newMockSelectionRepository(),
		policies:   newMockPolicyRepository(),
		events:     newMockWebhookEventRepository(),
		checkout:   &fakeCheckout{},
		issuance:   &fakeIssuance{},
	}

	repos := &repository.Repositories{
		Payment:      mocks.payments,
		Selection:    mocks.selections,
		Policy:       mocks.policies,
		WebhookEvent: mocks.events,
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	sealer, err := crypto.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	cfg := &config.Config{
		PaymentCurrencyDefault: "eur",
		CheckoutSessionTTL:     24 * time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewPaymentService(cfg, repos, mocks.checkout, mocks.issuance, sealer, logger)
	return svc, mocks
}

func testInitiateParams(quoteID string) InitiateParams {
	return InitiateParams{
		UserID:        "user_123",
		QuoteID:       quoteID,
		AmountMinor:   4200,
		ProductName:   "Explorer Annual",
		CustomerEmail: "traveller@example.com",
		Selection: &SelectionInput{
			OfferID:      "offer-explorer",
			QuotationRef: "qref-789",
			InsuredParties: []quotation.InsuredParty{
				{FirstName: "Ana", LastName: "Silva", BirthDate: "1990-04-12", PassportNumber: "X1234567"},
			},
			MainContact: &quotation.Contact{
				FirstName: "Ana",
				LastName:  "Silva",
				Email:     "ana@example.com",
				Phone:     "+351900000000",
				Country:   "PT",
			},
			PricingRaw: json.RawMessage(`{"total":42.00,"currency":"eur"}`),
		},
	}
}

// ========================================
// Initiate Tests
// ========================================

func TestPaymentService_Initiate(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-1"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	if record.Status != models.PaymentStatusPending {
		t.Errorf("Status = %v, want %v", record.Status, models.PaymentStatusPending)
	}
	if len(record.PaymentIntentID) != 32 {
		t.Errorf("PaymentIntentID length = %d, want 32 hex chars", len(record.PaymentIntentID))
	}
	if record.Currency != "eur" {
		t.Errorf("Currency = %q, want default %q", record.Currency, "eur")
	}
	if record.CheckoutURL == "" {
		t.Error("expected checkout URL on initiated payment")
	}
	if record.ExternalSessionID != "cs_test_"+record.PaymentIntentID {
		t.Errorf("ExternalSessionID = %q", record.ExternalSessionID)
	}
	if record.ExpiresAt == nil {
		t.Error("expected expiry on initiated payment")
	}

	if len(mocks.checkout.created) != 1 {
		t.Fatalf("checkout sessions created = %d, want 1", len(mocks.checkout.created))
	}
	sess := mocks.checkout.created[0]
	if sess.PaymentIntentID != record.PaymentIntentID {
		t.Errorf("session PaymentIntentID = %q, want %q", sess.PaymentIntentID, record.PaymentIntentID)
	}
	if sess.AmountMinor != 4200 || sess.Currency != "eur" {
		t.Errorf("session amount/currency = %d/%q, want 4200/eur", sess.AmountMinor, sess.Currency)
	}

	selection, err := mocks.selections.GetByQuote(ctx, "quote-1")
	if err != nil {
		t.Fatalf("GetByQuote() error = %v", err)
	}
	if selection == nil {
		t.Fatal("expected selection to be stored")
	}
	if selection.PaymentIntentID != record.PaymentIntentID {
		t.Errorf("selection PaymentIntentID = %q, want %q", selection.PaymentIntentID, record.PaymentIntentID)
	}
	if selection.InsuredEnc == "" || strings.Contains(selection.InsuredEnc, "Ana") {
		t.Error("insured parties should be stored sealed")
	}
	if selection.ContactEnc == "" || strings.Contains(selection.ContactEnc, "ana@example.com") {
		t.Error("contact should be stored sealed")
	}
}

func TestPaymentService_InitiateValidation(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*InitiateParams)
	}{
		{"missing user", func(p *InitiateParams) { p.UserID = "" }},
		{"missing quote", func(p *InitiateParams) { p.QuoteID = "" }},
		{"missing product", func(p *InitiateParams) { p.ProductName = "" }},
		{"zero amount", func(p *InitiateParams) { p.AmountMinor = 0 }},
		{"negative amount", func(p *InitiateParams) { p.AmountMinor = -100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testInitiateParams("quote-v")
			tt.mutate(&params)

			_, err := svc.Initiate(ctx, params)
			if errs.KindOf(err) != errs.KindInvalidArgument {
				t.Errorf("Initiate() error kind = %v, want %v (err: %v)", errs.KindOf(err), errs.KindInvalidArgument, err)
			}
		})
	}
}

func TestPaymentService_InitiateUppercaseCurrency(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	params := testInitiateParams("quote-cur")
	params.Currency = "USD"

	record, err := svc.Initiate(ctx, params)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if record.Currency != "usd" {
		t.Errorf("Currency = %q, want %q", record.Currency, "usd")
	}
}

func TestPaymentService_InitiateDuplicate(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	first, err := svc.Initiate(ctx, testInitiateParams("quote-dup"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	_, err = svc.Initiate(ctx, testInitiateParams("quote-dup"))
	if errs.KindOf(err) != errs.KindDuplicate {
		t.Fatalf("Initiate() error kind = %v, want %v (err: %v)", errs.KindOf(err), errs.KindDuplicate, err)
	}
	if !strings.Contains(err.Error(), first.PaymentIntentID) {
		t.Errorf("duplicate error should name the existing payment, got %q", err.Error())
	}

	if len(mocks.checkout.created) != 1 {
		t.Errorf("checkout sessions created = %d, want 1", len(mocks.checkout.created))
	}
}

func TestPaymentService_InitiateRecordsBeforeProvider(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	var sawPending bool
	mocks.checkout.onCreate = func(params CheckoutParams) {
		p, err := mocks.payments.GetByID(ctx, params.PaymentIntentID)
		if err != nil || p == nil {
			return
		}
		sawPending = p.Status == models.PaymentStatusPending
	}

	if _, err := svc.Initiate(ctx, testInitiateParams("quote-order")); err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if !sawPending {
		t.Error("payment record should exist in pending before the provider is called")
	}
}

func TestPaymentService_InitiateSessionFailure(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()
	mocks.checkout.createErr = errors.New("stripe: connection refused")

	_, err := svc.Initiate(ctx, testInitiateParams("quote-fail"))
	if errs.KindOf(err) != errs.KindUnavailable {
		t.Fatalf("Initiate() error kind = %v, want %v (err: %v)", errs.KindOf(err), errs.KindUnavailable, err)
	}

	history, err := mocks.payments.GetByQuote(ctx, "quote-fail")
	if err != nil {
		t.Fatalf("GetByQuote() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("payments for quote = %d, want 1", len(history))
	}
	if history[0].Status != models.PaymentStatusFailed {
		t.Errorf("Status = %v, want %v", history[0].Status, models.PaymentStatusFailed)
	}
	if history[0].FailureReason != "checkout session creation failed" {
		t.Errorf("FailureReason = %q", history[0].FailureReason)
	}

	// The failed record frees the quote for another attempt.
	mocks.checkout.createErr = nil
	if _, err := svc.Initiate(ctx, testInitiateParams("quote-fail")); err != nil {
		t.Fatalf("Initiate() after failure error = %v", err)
	}
}

func TestPaymentService_InitiateLinksExistingSelection(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	err := mocks.selections.Upsert(ctx, &models.SelectionRecord{
		QuoteID:      "quote-linked",
		UserID:       "user_123",
		OfferID:      "offer-basic",
		ProductName:  "Explorer Annual",
		QuotationRef: "qref-111",
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	params := testInitiateParams("quote-linked")
	params.Selection = nil

	record, err := svc.Initiate(ctx, params)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	selection, err := mocks.selections.GetByQuote(ctx, "quote-linked")
	if err != nil {
		t.Fatalf("GetByQuote() error = %v", err)
	}
	if selection.PaymentIntentID != record.PaymentIntentID {
		t.Errorf("selection PaymentIntentID = %q, want %q", selection.PaymentIntentID, record.PaymentIntentID)
	}
	if selection.OfferID != "offer-basic" {
		t.Errorf("OfferID = %q, existing selection should be kept", selection.OfferID)
	}
}

// ========================================
// Status Tests
// ========================================

func TestPaymentService_StatusNotFound(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	_, err := svc.Status(ctx, "missing-intent")
	if errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("Status() error kind = %v, want %v", errs.KindOf(err), errs.KindNotFound)
	}

	_, err = svc.Status(ctx, "")
	if errs.KindOf(err) != errs.KindInvalidArgument {
		t.Errorf("Status(\"\") error kind = %v, want %v", errs.KindOf(err), errs.KindInvalidArgument)
	}
}

// ========================================
// Complete Tests
// ========================================

func completeTestPayment(t *testing.T, svc *PaymentService, record *models.PaymentRecord) {
	t.Helper()
	err := svc.HandleCheckoutCompleted(context.Background(), "evt_"+record.PaymentIntentID, record.PaymentIntentID, record.ExternalSessionID, "pi_ext_"+record.PaymentIntentID)
	if err != nil {
		t.Fatalf("HandleCheckoutCompleted() error = %v", err)
	}
}

func TestPaymentService_CompleteIssuesPolicy(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-complete"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	completeTestPayment(t, svc, record)

	policy, err := svc.Complete(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if policy.IssuanceStatus != models.IssuanceConfirmed {
		t.Errorf("IssuanceStatus = %q, want %q", policy.IssuanceStatus, models.IssuanceConfirmed)
	}
	if policy.PolicyNumber != "POL-2026-0001" {
		t.Errorf("PolicyNumber = %q, want the issuer's number", policy.PolicyNumber)
	}
	if policy.ExternalPurchaseID != "ext-pur-1" {
		t.Errorf("ExternalPurchaseID = %q", policy.ExternalPurchaseID)
	}

	if len(mocks.issuance.requests) != 1 {
		t.Fatalf("issuance requests = %d, want 1", len(mocks.issuance.requests))
	}
	req := mocks.issuance.requests[0]
	if req.QuotationID != "qref-789" || req.ProductID != "offer-explorer" {
		t.Errorf("purchase request = %q/%q, want qref-789/offer-explorer", req.QuotationID, req.ProductID)
	}
	if len(req.InsuredParties) != 1 || req.InsuredParties[0].PassportNumber != "X1234567" {
		t.Errorf("insured parties should round-trip through the sealed selection, got %+v", req.InsuredParties)
	}
	if req.MainContact.Email != "ana@example.com" {
		t.Errorf("contact Email = %q", req.MainContact.Email)
	}

	// A second Complete returns the recorded policy without re-issuing.
	again, err := svc.Complete(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Complete() repeat error = %v", err)
	}
	if again.PolicyID != policy.PolicyID {
		t.Errorf("repeat Complete() PolicyID = %q, want %q", again.PolicyID, policy.PolicyID)
	}
	if len(mocks.issuance.requests) != 1 {
		t.Errorf("issuance requests after repeat = %d, want 1", len(mocks.issuance.requests))
	}
}

func TestPaymentService_CompleteRequiresCompletedPayment(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-pending"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	_, err = svc.Complete(ctx, record.PaymentIntentID)
	if errs.KindOf(err) != errs.KindPreconditionFailed {
		t.Fatalf("Complete() error kind = %v, want %v", errs.KindOf(err), errs.KindPreconditionFailed)
	}
	if !strings.Contains(err.Error(), "pending") {
		t.Errorf("error should name the current status, got %q", err.Error())
	}
}

func TestPaymentService_CompleteIssuanceFailure(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()
	mocks.issuance.purchaseErr = errors.New("quotation API: 502")

	record, err := svc.Initiate(ctx, testInitiateParams("quote-degraded"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	completeTestPayment(t, svc, record)

	policy, err := svc.Complete(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if policy.IssuanceStatus != models.IssuanceDeferred {
		t.Errorf("IssuanceStatus = %q, want %q", policy.IssuanceStatus, models.IssuanceDeferred)
	}
	if !strings.HasPrefix(policy.PolicyNumber, "WS-") {
		t.Errorf("PolicyNumber = %q, want a provisional WS- number", policy.PolicyNumber)
	}
	if policy.ExternalPurchaseID != "" {
		t.Errorf("ExternalPurchaseID = %q, want empty on deferred issuance", policy.ExternalPurchaseID)
	}
}

func TestPaymentService_CompleteWithoutQuotationRef(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	params := testInitiateParams("quote-noref")
	params.Selection.QuotationRef = ""

	record, err := svc.Initiate(ctx, params)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	completeTestPayment(t, svc, record)

	policy, err := svc.Complete(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if policy.IssuanceStatus != models.IssuanceDeferred {
		t.Errorf("IssuanceStatus = %q, want %q", policy.IssuanceStatus, models.IssuanceDeferred)
	}
	if len(mocks.issuance.requests) != 0 {
		t.Errorf("issuance requests = %d, want 0 without a quotation ref", len(mocks.issuance.requests))
	}
}

// ========================================
// Cancel Tests
// ========================================

func TestPaymentService_Cancel(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-cancel"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	cancelled, err := svc.Cancel(ctx, record.PaymentIntentID, "")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != models.PaymentStatusCancelled {
		t.Errorf("Status = %v, want %v", cancelled.Status, models.PaymentStatusCancelled)
	}
	if cancelled.FailureReason != "cancelled by user" {
		t.Errorf("FailureReason = %q, want default reason", cancelled.FailureReason)
	}

	if len(mocks.checkout.expired) != 1 || mocks.checkout.expired[0] != record.ExternalSessionID {
		t.Errorf("expired sessions = %v, want [%s]", mocks.checkout.expired, record.ExternalSessionID)
	}
}

func TestPaymentService_CancelCompletedRejected(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-paid"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	completeTestPayment(t, svc, record)

	_, err = svc.Cancel(ctx, record.PaymentIntentID, "changed my mind")
	if errs.KindOf(err) != errs.KindPreconditionFailed {
		t.Errorf("Cancel() error kind = %v, want %v", errs.KindOf(err), errs.KindPreconditionFailed)
	}
}

func TestPaymentService_CancelTerminalNoOp(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-twice"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if _, err := svc.Cancel(ctx, record.PaymentIntentID, "first"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	again, err := svc.Cancel(ctx, record.PaymentIntentID, "second")
	if err != nil {
		t.Fatalf("Cancel() repeat error = %v", err)
	}
	if again.Status != models.PaymentStatusCancelled {
		t.Errorf("Status = %v, want %v", again.Status, models.PaymentStatusCancelled)
	}
	if again.FailureReason != "first" {
		t.Errorf("FailureReason = %q, repeat cancel must not rewrite it", again.FailureReason)
	}
	if len(mocks.checkout.expired) != 1 {
		t.Errorf("expired sessions = %d, want 1", len(mocks.checkout.expired))
	}
}

// ========================================
// Webhook Tests
// ========================================

func TestPaymentService_HandleCheckoutCompleted(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-hook"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	err = svc.HandleCheckoutCompleted(ctx, "evt_1", record.PaymentIntentID, record.ExternalSessionID, "pi_ext_1")
	if err != nil {
		t.Fatalf("HandleCheckoutCompleted() error = %v", err)
	}

	updated, err := svc.Status(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if updated.Status != models.PaymentStatusCompleted {
		t.Errorf("Status = %v, want %v", updated.Status, models.PaymentStatusCompleted)
	}
	if updated.ExternalPaymentIntent != "pi_ext_1" {
		t.Errorf("ExternalPaymentIntent = %q, want %q", updated.ExternalPaymentIntent, "pi_ext_1")
	}
	if updated.WebhookProcessedAt == nil {
		t.Fatal("expected webhook processing timestamp")
	}

	// Re-delivery of the same event changes nothing.
	firstProcessed := *updated.WebhookProcessedAt
	err = svc.HandleCheckoutCompleted(ctx, "evt_1", record.PaymentIntentID, record.ExternalSessionID, "pi_ext_other")
	if err != nil {
		t.Fatalf("HandleCheckoutCompleted() re-delivery error = %v", err)
	}
	after, err := svc.Status(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if after.ExternalPaymentIntent != "pi_ext_1" {
		t.Errorf("ExternalPaymentIntent = %q after re-delivery, want %q", after.ExternalPaymentIntent, "pi_ext_1")
	}
	if !after.WebhookProcessedAt.Equal(firstProcessed) {
		t.Errorf("WebhookProcessedAt changed on re-delivery: %v -> %v", firstProcessed, after.WebhookProcessedAt)
	}
}

func TestPaymentService_HandleCheckoutCompletedUnknownPayment(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	// Unknown payments are logged and acknowledged, not errored.
	err := svc.HandleCheckoutCompleted(ctx, "evt_unknown", "no-such-intent", "cs_none", "pi_none")
	if err != nil {
		t.Errorf("HandleCheckoutCompleted() error = %v, want nil for unknown payment", err)
	}
}

func TestPaymentService_HandleCheckoutExpired(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-exp"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	err = svc.HandleCheckoutExpired(ctx, "evt_exp_1", record.PaymentIntentID, record.ExternalSessionID)
	if err != nil {
		t.Fatalf("HandleCheckoutExpired() error = %v", err)
	}

	updated, err := svc.Status(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if updated.Status != models.PaymentStatusExpired {
		t.Errorf("Status = %v, want %v", updated.Status, models.PaymentStatusExpired)
	}
}

func TestPaymentService_HandlePaymentFailed(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-declined"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	err = svc.HandlePaymentFailed(ctx, "evt_fail_1", record.PaymentIntentID, "pi_ext_9", "card declined")
	if err != nil {
		t.Fatalf("HandlePaymentFailed() error = %v", err)
	}

	updated, err := svc.Status(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if updated.Status != models.PaymentStatusFailed {
		t.Errorf("Status = %v, want %v", updated.Status, models.PaymentStatusFailed)
	}
	if updated.FailureReason != "card declined" {
		t.Errorf("FailureReason = %q, want %q", updated.FailureReason, "card declined")
	}
	if updated.ExternalPaymentIntent != "pi_ext_9" {
		t.Errorf("ExternalPaymentIntent = %q, want %q", updated.ExternalPaymentIntent, "pi_ext_9")
	}

	// The quote is free for a new attempt after the failure.
	if _, err := svc.Initiate(ctx, testInitiateParams("quote-declined")); err != nil {
		t.Errorf("Initiate() after failure error = %v", err)
	}
}

func TestPaymentService_HandlePaymentFailedAfterCompletion(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-sink"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	completeTestPayment(t, svc, record)

	// A late failure event cannot move a completed payment.
	err = svc.HandlePaymentFailed(ctx, "evt_late", record.PaymentIntentID, "pi_ext_late", "card declined")
	if err != nil {
		t.Fatalf("HandlePaymentFailed() error = %v", err)
	}

	updated, err := svc.Status(ctx, record.PaymentIntentID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if updated.Status != models.PaymentStatusCompleted {
		t.Errorf("Status = %v, completed payments are a terminal sink", updated.Status)
	}
}

// ========================================
// Expiry and Lookup Tests
// ========================================

func TestPaymentService_ExpireStale(t *testing.T) {
	svc, mocks := newTestPaymentService(t)
	ctx := context.Background()

	stale, err := svc.Initiate(ctx, testInitiateParams("quote-stale"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	fresh, err := svc.Initiate(ctx, testInitiateParams("quote-fresh"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	past := time.Now().Add(-time.Hour)
	mocks.payments.SetExpiry(stale.PaymentIntentID, &past)

	count, err := svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	if count != 1 {
		t.Errorf("ExpireStale() count = %d, want 1", count)
	}

	expired, _ := svc.Status(ctx, stale.PaymentIntentID)
	if expired.Status != models.PaymentStatusExpired {
		t.Errorf("stale payment Status = %v, want %v", expired.Status, models.PaymentStatusExpired)
	}
	kept, _ := svc.Status(ctx, fresh.PaymentIntentID)
	if kept.Status != models.PaymentStatusPending {
		t.Errorf("fresh payment Status = %v, want %v", kept.Status, models.PaymentStatusPending)
	}
}

func TestPaymentService_GetByQuote(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, testInitiateParams("quote-look"))
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	active, err := svc.GetByQuote(ctx, "quote-look")
	if err != nil {
		t.Fatalf("GetByQuote() error = %v", err)
	}
	if active.PaymentIntentID != record.PaymentIntentID {
		t.Errorf("PaymentIntentID = %q, want %q", active.PaymentIntentID, record.PaymentIntentID)
	}

	// After cancellation the historical record is still reachable.
	if _, err := svc.Cancel(ctx, record.PaymentIntentID, ""); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	historical, err := svc.GetByQuote(ctx, "quote-look")
	if err != nil {
		t.Fatalf("GetByQuote() after cancel error = %v", err)
	}
	if historical.Status != models.PaymentStatusCancelled {
		t.Errorf("Status = %v, want %v", historical.Status, models.PaymentStatusCancelled)
	}

	_, err = svc.GetByQuote(ctx, "quote-never")
	if errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("GetByQuote() error kind = %v, want %v", errs.KindOf(err), errs.KindNotFound)
	}
}

func TestPaymentService_ListByUser(t *testing.T) {
	svc, _ := newTestPaymentService(t)
	ctx := context.Background()

	for _, quote := range []string{"quote-l1", "quote-l2", "quote-l3"} {
		if _, err := svc.Initiate(ctx, testInitiateParams(quote)); err != nil {
			t.Fatalf("Initiate(%s) error = %v", quote, err)
		}
	}

	payments, err := svc.ListByUser(ctx, "user_123", 2)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(payments) != 2 {
		t.Errorf("ListByUser() returned %d payments, want 2", len(payments))
	}

	_, err = svc.ListByUser(ctx, "", 10)
	if errs.KindOf(err) != errs.KindInvalidArgument {
		t.Errorf("ListByUser(\"\") error kind = %v, want %v", errs.KindOf(err), errs.KindInvalidArgument)
	}
}
