package routes

import (
	"context"

	"github.com/wandersure/wandersure-api/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses - these are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		// Public endpoints
		HealthCheck: stubHealthCheck,

		// Kubernetes probes
		Livez:  stubLivez,
		Readyz: stubReadyz,

		// Protected endpoint handlers
		Search:    &stubSearchHandlers{},
		Claims:    &stubClaimsHandlers{},
		Quotation: &stubQuotationHandlers{},
		Memory:    &stubMemoryHandlers{},
		Purchase:  &stubPurchaseHandlers{},
	}
}

// --- Public endpoint stubs ---

func stubHealthCheck(_ context.Context, _ *struct{}) (*handlers.HealthCheckOutput, error) {
	return nil, nil
}

func stubLivez(_ context.Context, _ *struct{}) (*handlers.LivezOutput, error) {
	return nil, nil
}

func stubReadyz(_ context.Context, _ *struct{}) (*handlers.ReadyzOutput, error) {
	return nil, nil
}

// --- Search handlers stub ---

type stubSearchHandlers struct{}

func (s *stubSearchHandlers) StructuredPolicySearch(_ context.Context, _ *handlers.StructuredPolicySearchInput) (*handlers.StructuredPolicySearchOutput, error) {
	return nil, nil
}

func (s *stubSearchHandlers) ConceptSearch(_ context.Context, _ *handlers.ConceptSearchInput) (*handlers.ConceptSearchOutput, error) {
	return nil, nil
}

// --- Claims handlers stub ---

type stubClaimsHandlers struct{}

func (s *stubClaimsHandlers) ClaimsInsights(_ context.Context, _ *handlers.ClaimsInsightsInput) (*handlers.ClaimsInsightsOutput, error) {
	return nil, nil
}

// --- Quotation handlers stub ---

type stubQuotationHandlers struct{}

func (s *stubQuotationHandlers) GetQuote(_ context.Context, _ *handlers.GetQuoteInput) (*handlers.GetQuoteOutput, error) {
	return nil, nil
}

// --- Memory handlers stub ---

type stubMemoryHandlers struct{}

func (s *stubMemoryHandlers) AddMemory(_ context.Context, _ *handlers.AddMemoryInput) (*handlers.AddMemoryOutput, error) {
	return nil, nil
}

func (s *stubMemoryHandlers) SearchMemory(_ context.Context, _ *handlers.SearchMemoryInput) (*handlers.SearchMemoryOutput, error) {
	return nil, nil
}

func (s *stubMemoryHandlers) ListMemories(_ context.Context, _ *handlers.ListMemoriesInput) (*handlers.ListMemoriesOutput, error) {
	return nil, nil
}

func (s *stubMemoryHandlers) DeleteMemory(_ context.Context, _ *handlers.DeleteMemoryInput) (*handlers.DeleteMemoryOutput, error) {
	return nil, nil
}

// --- Purchase handlers stub ---

type stubPurchaseHandlers struct{}

func (s *stubPurchaseHandlers) InitiatePurchase(_ context.Context, _ *handlers.InitiatePurchaseInput) (*handlers.InitiatePurchaseOutput, error) {
	return nil, nil
}

func (s *stubPurchaseHandlers) GetPaymentStatus(_ context.Context, _ *handlers.GetPaymentStatusInput) (*handlers.GetPaymentStatusOutput, error) {
	return nil, nil
}

func (s *stubPurchaseHandlers) CompletePurchase(_ context.Context, _ *handlers.CompletePurchaseInput) (*handlers.CompletePurchaseOutput, error) {
	return nil, nil
}

func (s *stubPurchaseHandlers) CancelPayment(_ context.Context, _ *handlers.CancelPaymentInput) (*handlers.CancelPaymentOutput, error) {
	return nil, nil
}

func (s *stubPurchaseHandlers) ListUserPayments(_ context.Context, _ *handlers.ListUserPaymentsInput) (*handlers.ListUserPaymentsOutput, error) {
	return nil, nil
}
