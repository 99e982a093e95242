package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/wandersure/wandersure-api/internal/http/mw"
	"github.com/wandersure/wandersure-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata, security schemes, and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("WanderSure API", version.Get().Short())
	cfg.Info.Description = "Server core of a conversational travel-insurance platform: policy search, claims insights, quotation, purchase, and per-user memory for an LLM agent."

	// Disable $schema field in responses - it conflicts with "schema" field in SDK code generators
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	// Add security scheme for Bearer auth
	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Agent authentication. Include an agent API key or HS256 service token in the Authorization header as `Bearer <credential>`.",
		},
	}

	// Define OpenAPI tags with display names for documentation
	cfg.Tags = []*huma.Tag{
		{Name: "Search", Description: "Structured policy search and knowledge-graph concept search", Extensions: map[string]any{"x-displayName": "Search"}},
		{Name: "Claims", Description: "Data-driven insights from the historical claims warehouse", Extensions: map[string]any{"x-displayName": "Claims"}},
		{Name: "Quotation", Description: "Trip quotes from the upstream pricing provider", Extensions: map[string]any{"x-displayName": "Quotation"}},
		{Name: "Purchase", Description: "Payment initiation, completion, and policy issuance", Extensions: map[string]any{"x-displayName": "Purchase"}},
		{Name: "Memory", Description: "Per-user conversational memory", Extensions: map[string]any{"x-displayName": "Memory"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
