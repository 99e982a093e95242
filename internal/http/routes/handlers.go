// Package routes provides shared route registration for the WanderSure API.
// This allows both the main server and the OpenAPI generator to use
// the same route definitions, ensuring the generated document is always
// in sync with the live surface.
package routes

import (
	"context"

	"github.com/wandersure/wandersure-api/internal/http/handlers"
)

// SearchHandlers defines the interface for policy search operations.
type SearchHandlers interface {
	StructuredPolicySearch(ctx context.Context, input *handlers.StructuredPolicySearchInput) (*handlers.StructuredPolicySearchOutput, error)
	ConceptSearch(ctx context.Context, input *handlers.ConceptSearchInput) (*handlers.ConceptSearchOutput, error)
}

// ClaimsHandlers defines the interface for claims analytics operations.
type ClaimsHandlers interface {
	ClaimsInsights(ctx context.Context, input *handlers.ClaimsInsightsInput) (*handlers.ClaimsInsightsOutput, error)
}

// QuotationHandlers defines the interface for quote operations.
type QuotationHandlers interface {
	GetQuote(ctx context.Context, input *handlers.GetQuoteInput) (*handlers.GetQuoteOutput, error)
}

// MemoryHandlers defines the interface for conversational memory operations.
type MemoryHandlers interface {
	AddMemory(ctx context.Context, input *handlers.AddMemoryInput) (*handlers.AddMemoryOutput, error)
	SearchMemory(ctx context.Context, input *handlers.SearchMemoryInput) (*handlers.SearchMemoryOutput, error)
	ListMemories(ctx context.Context, input *handlers.ListMemoriesInput) (*handlers.ListMemoriesOutput, error)
	DeleteMemory(ctx context.Context, input *handlers.DeleteMemoryInput) (*handlers.DeleteMemoryOutput, error)
}

// PurchaseHandlers defines the interface for payment and purchase operations.
type PurchaseHandlers interface {
	InitiatePurchase(ctx context.Context, input *handlers.InitiatePurchaseInput) (*handlers.InitiatePurchaseOutput, error)
	GetPaymentStatus(ctx context.Context, input *handlers.GetPaymentStatusInput) (*handlers.GetPaymentStatusOutput, error)
	CompletePurchase(ctx context.Context, input *handlers.CompletePurchaseInput) (*handlers.CompletePurchaseOutput, error)
	CancelPayment(ctx context.Context, input *handlers.CancelPaymentInput) (*handlers.CancelPaymentOutput, error)
	ListUserPayments(ctx context.Context, input *handlers.ListUserPaymentsInput) (*handlers.ListUserPaymentsOutput, error)
}

// Handlers aggregates all handler interfaces for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass stub implementations.
type Handlers struct {
	// Public endpoints
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Kubernetes probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	// Protected endpoint handlers
	Search    SearchHandlers
	Claims    ClaimsHandlers
	Quotation QuotationHandlers
	Memory    MemoryHandlers
	Purchase  PurchaseHandlers
}
