// Package mcp exposes the platform's operations as a typed tool set for
// external LLM agents, served over the streamable HTTP transport.
//
// Tools are thin: they validate arguments, call the core component, and
// serialize the result. Domain failures come back as tool errors carrying the
// error kind's suggested recovery action, so the agent can decide between
// retrying, changing its input, and escalating.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wandersure/wandersure-api/internal/claims"
	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/memory"
	"github.com/wandersure/wandersure-api/internal/models"
	"github.com/wandersure/wandersure-api/internal/quotation"
	"github.com/wandersure/wandersure-api/internal/routing"
	"github.com/wandersure/wandersure-api/internal/service"
	"github.com/wandersure/wandersure-api/internal/version"
)

// PolicyRouter routes a query to policy tables and searches each.
type PolicyRouter interface {
	Route(ctx context.Context, query string, k int) (*routing.Result, error)
}

// ConceptSearcher answers semantic queries over the concept graph.
type ConceptSearcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// ClaimsAnalyzer runs the claims insight pipeline.
type ClaimsAnalyzer interface {
	Analyze(ctx context.Context, query string, topicCount int) (*claims.Report, error)
}

// PricingClient prices a trip with the upstream quotation provider.
type PricingClient interface {
	Pricing(ctx context.Context, req quotation.QuoteRequest) (*quotation.QuoteResponse, error)
}

// MemoryStore manages per-user conversational memory.
type MemoryStore interface {
	Add(ctx context.Context, userID string, messages []memory.Message, metadata map[string]any) ([]memory.Item, error)
	Search(ctx context.Context, userID, query string, limit int) ([]memory.Item, error)
	All(ctx context.Context, userID string) ([]memory.Item, error)
	Delete(ctx context.Context, memoryID string) error
}

// PaymentOrchestrator drives the purchase lifecycle.
type PaymentOrchestrator interface {
	Initiate(ctx context.Context, params service.InitiateParams) (*models.PaymentRecord, error)
	Status(ctx context.Context, paymentIntentID string) (*models.PaymentRecord, error)
	Complete(ctx context.Context, paymentIntentID string) (*models.PolicyRecord, error)
	Cancel(ctx context.Context, paymentIntentID, reason string) (*models.PaymentRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.PaymentRecord, error)
}

// Deps are the core components behind the tool set. Any may be nil; the
// corresponding tools then report themselves unavailable instead of being
// withheld, so the agent sees a stable tool list.
type Deps struct {
	Router   PolicyRouter
	Concepts ConceptSearcher
	Claims   ClaimsAnalyzer
	Quotes   PricingClient
	Memory   MemoryStore
	Payments PaymentOrchestrator
}

// Server is the MCP tool surface.
type Server struct {
	deps   Deps
	logger *slog.Logger
	mcp    *mcpsdk.Server
}

// New builds the MCP server and registers the full tool set.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		logger: logger.With("component", "mcp"),
	}

	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "wandersure",
		Version: version.Get().Short(),
	}, &mcpsdk.ServerOptions{
		Instructions: "Tools for the WanderSure travel-insurance platform: policy search, claims insights, quotes, purchases, and per-user memory.",
	})

	s.registerSearchTools()
	s.registerClaimsTools()
	s.registerQuotationTools()
	s.registerMemoryTools()
	s.registerPurchaseTools()

	return s
}

// Handler returns the streamable HTTP handler for mounting at /mcp.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.mcp
	}, nil)
}

// toolError wraps a domain failure as a tool error result. The text carries
// the kind's suggested action so the agent knows whether to retry, change
// its input, or escalate.
func toolError(err error) *mcpsdk.CallToolResult {
	kind := errs.KindOf(err)
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{
			Text: fmt.Sprintf("%s (suggested action: %s)", err.Error(), kind.SuggestedAction()),
		}},
	}
}

// notConfigured reports a tool whose backing component is absent.
func notConfigured(component string) *mcpsdk.CallToolResult {
	return toolError(errs.Newf(errs.KindUnavailable, "%s is not configured", component))
}

// jsonResult serializes v as indented JSON text and attaches it as structured
// content alongside.
func jsonResult(v any) *mcpsdk.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(errs.Wrap(errs.KindRuntime, "failed to encode tool result", err))
	}
	return &mcpsdk.CallToolResult{
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
		StructuredContent: v,
	}
}
