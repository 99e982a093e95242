package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wandersure/wandersure-api/internal/constants"
	"github.com/wandersure/wandersure-api/internal/models"
	"github.com/wandersure/wandersure-api/internal/routing"
)

type structuredPolicySearchArgs struct {
	Query string `json:"query" jsonschema:"natural-language question about policy conditions, benefits, or coverage"`
	TopK  *int   `json:"top_k,omitempty" jsonschema:"matches per routed table, 1-50, defaults to 5"`
}

type structuredPolicySearchResult struct {
	Success        bool                 `json:"success"`
	Data           []models.PolicyMatch `json:"data"`
	TablesSearched []string             `json:"tables_searched"`
	TotalResults   int                  `json:"total_results"`
	Query          string               `json:"query"`
}

type conceptSearchArgs struct {
	Query string `json:"query" jsonschema:"natural-language query over the policy knowledge graph"`
	TopK  *int   `json:"top_k,omitempty" jsonschema:"number of concept facts to return, defaults to 5"`
}

type conceptSearchResult struct {
	Results []string `json:"results"`
	Count   int      `json:"count"`
	Query   string   `json:"query"`
}

func (s *Server) registerSearchTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "search_structured_policy",
		Description: "Search structured travel-insurance policy data (general conditions, benefits, benefit conditions, original policy text). Routes the query to the tables it concerns and runs a semantic search over each.",
	}, s.searchStructuredPolicy)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "search_concepts",
		Description: "Search the policy knowledge graph for dense concept facts related to the query. Useful for definitions and cross-cutting rules that span policy tables.",
	}, s.searchConcepts)
}

func (s *Server) searchStructuredPolicy(ctx context.Context, req *mcpsdk.CallToolRequest, args structuredPolicySearchArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Router == nil {
		return notConfigured("structured policy search"), nil, nil
	}

	k := constants.DefaultSearchK
	if args.TopK != nil {
		k = *args.TopK
	}

	result, err := s.deps.Router.Route(ctx, args.Query, k)
	if err != nil {
		return toolError(err), nil, nil
	}

	body := structuredPolicySearchResult{
		Success:        result.Status == routing.StatusOK,
		Data:           result.Results,
		TablesSearched: result.TablesSearched,
		TotalResults:   len(result.Results),
		Query:          args.Query,
	}
	if body.Data == nil {
		body.Data = []models.PolicyMatch{}
	}
	if body.TablesSearched == nil {
		body.TablesSearched = []string{}
	}
	return jsonResult(body), nil, nil
}

func (s *Server) searchConcepts(ctx context.Context, req *mcpsdk.CallToolRequest, args conceptSearchArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Concepts == nil {
		return notConfigured("concept search"), nil, nil
	}

	k := constants.DefaultSearchK
	if args.TopK != nil {
		k = *args.TopK
	}

	results, err := s.deps.Concepts.Search(ctx, args.Query, k)
	if err != nil {
		return toolError(err), nil, nil
	}
	if results == nil {
		results = []string{}
	}

	return jsonResult(conceptSearchResult{
		Results: results,
		Count:   len(results),
		Query:   args.Query,
	}), nil, nil
}
