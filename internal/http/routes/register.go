package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/wandersure/wandersure-api/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
// Pass real handler implementations for the main server, or stub implementations
// for OpenAPI generation. The Stripe webhook is not registered here: it needs
// the raw request body for signature verification and mounts directly on the
// router.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	// Health check
	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require bearer auth)
	// =========================================================================

	// --- Policy Search ---
	mw.ProtectedPost(api, "/api/v1/structured-policy-search", h.Search.StructuredPolicySearch,
		mw.WithTags("Search"),
		mw.WithSummary("Search structured policy data"),
		mw.WithDescription("Routes the query to the policy tables it concerns and runs a semantic search over each."),
		mw.WithOperationID("structuredPolicySearch"),
		mw.WithScope("search"))
	mw.ProtectedPost(api, "/api/v1/concept-search", h.Search.ConceptSearch,
		mw.WithTags("Search"),
		mw.WithSummary("Search the policy knowledge graph"),
		mw.WithOperationID("conceptSearch"),
		mw.WithScope("search"))

	// --- Claims Insights ---
	mw.ProtectedPost(api, "/api/v1/claims-insights", h.Claims.ClaimsInsights,
		mw.WithTags("Claims"),
		mw.WithSummary("Generate claims insights"),
		mw.WithDescription("Plans analysis topics, generates and executes read-only SQL against the claims warehouse, and synthesises a narrative report. Runs in the extended timeout class."),
		mw.WithOperationID("claimsInsights"),
		mw.WithScope("claims"))

	// --- Quotation ---
	mw.ProtectedPost(api, "/api/v1/quotation", h.Quotation.GetQuote,
		mw.WithTags("Quotation"),
		mw.WithSummary("Get insurance quote"),
		mw.WithOperationID("getQuote"),
		mw.WithScope("quote"))

	// --- Memory ---
	mw.ProtectedPost(api, "/api/v1/memory/add", h.Memory.AddMemory,
		mw.WithTags("Memory"),
		mw.WithSummary("Add conversation to memory"),
		mw.WithOperationID("addMemory"),
		mw.WithScope("memory"))
	mw.ProtectedPost(api, "/api/v1/memory/search", h.Memory.SearchMemory,
		mw.WithTags("Memory"),
		mw.WithSummary("Search user memories"),
		mw.WithOperationID("searchMemory"),
		mw.WithScope("memory"))
	mw.ProtectedGet(api, "/api/v1/memory/{user_id}", h.Memory.ListMemories,
		mw.WithTags("Memory"),
		mw.WithSummary("List user memories"),
		mw.WithOperationID("listMemories"),
		mw.WithScope("memory"))
	mw.ProtectedDelete(api, "/api/v1/memory/{memory_id}", h.Memory.DeleteMemory,
		mw.WithTags("Memory"),
		mw.WithSummary("Delete a memory"),
		mw.WithOperationID("deleteMemory"),
		mw.WithScope("memory"))

	// --- Purchase ---
	mw.ProtectedPost(api, "/api/purchase/initiate", h.Purchase.InitiatePurchase,
		mw.WithTags("Purchase"),
		mw.WithSummary("Initiate purchase"),
		mw.WithDescription("Records the traveller's offer selection and opens a hosted checkout session."),
		mw.WithOperationID("initiatePurchase"),
		mw.WithScope("purchase"))
	mw.ProtectedGet(api, "/api/purchase/payment/{payment_intent_id}", h.Purchase.GetPaymentStatus,
		mw.WithTags("Purchase"),
		mw.WithSummary("Get payment status"),
		mw.WithOperationID("getPaymentStatus"),
		mw.WithScope("purchase"))
	mw.ProtectedPost(api, "/api/purchase/complete/{payment_intent_id}", h.Purchase.CompletePurchase,
		mw.WithTags("Purchase"),
		mw.WithSummary("Complete purchase"),
		mw.WithDescription("Issues the policy for a completed payment. Returns 412 while the payment is still pending."),
		mw.WithOperationID("completePurchase"),
		mw.WithScope("purchase"))
	mw.ProtectedPost(api, "/api/purchase/cancel/{payment_intent_id}", h.Purchase.CancelPayment,
		mw.WithTags("Purchase"),
		mw.WithSummary("Cancel payment"),
		mw.WithOperationID("cancelPayment"),
		mw.WithScope("purchase"))
	mw.ProtectedGet(api, "/api/purchase/user/{user_id}/payments", h.Purchase.ListUserPayments,
		mw.WithTags("Purchase"),
		mw.WithSummary("List user payments"),
		mw.WithOperationID("listUserPayments"),
		mw.WithScope("purchase"))
}
