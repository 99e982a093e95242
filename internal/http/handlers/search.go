package handlers

import (
	"context"

	"github.com/wandersure/wandersure-api/internal/constants"
	"github.com/wandersure/wandersure-api/internal/models"
	"github.com/wandersure/wandersure-api/internal/routing"
)

// PolicyRouter routes a coverage question to policy tables and searches them.
type PolicyRouter interface {
	Route(ctx context.Context, query string, k int) (*routing.Result, error)
}

// ConceptSearcher matches a query against the traveller concept index.
type ConceptSearcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// SearchHandler handles policy and concept search endpoints.
type SearchHandler struct {
	router   PolicyRouter
	concepts ConceptSearcher
}

// NewSearchHandler creates a new search handler. Either dependency may be
// nil when its backing store is not configured; the matching endpoint then
// reports unavailable.
func NewSearchHandler(router PolicyRouter, concepts ConceptSearcher) *SearchHandler {
	return &SearchHandler{router: router, concepts: concepts}
}

// StructuredPolicySearchInput represents a structured policy search request.
// Query and top_k bounds are enforced downstream so violations surface as
// 400 rather than schema errors.
type StructuredPolicySearchInput struct {
	Body struct {
		Query string `json:"query,omitempty" doc:"Natural-language question about policy coverage. Must not be empty."`
		TopK  *int   `json:"top_k,omitempty" doc:"Rows to return per searched table, 1 to 50. Defaults to 5."`
	}
}

// StructuredPolicySearchOutput represents a structured policy search response.
type StructuredPolicySearchOutput struct {
	Body StructuredPolicySearchResponseBody
}

// StructuredPolicySearchResponseBody carries the merged search results.
type StructuredPolicySearchResponseBody struct {
	Success        bool                 `json:"success" doc:"False when table selection gave up or a table search failed"`
	Data           []models.PolicyMatch `json:"data" doc:"Merged rows across tables, scored rows first"`
	TablesSearched []string             `json:"tables_searched" doc:"Policy tables the router selected"`
	TotalResults   int                  `json:"total_results"`
	Query          string               `json:"query" doc:"Echo of the request query"`
}

// StructuredPolicySearch routes the query to the relevant policy tables and
// returns the merged rows.
func (h *SearchHandler) StructuredPolicySearch(ctx context.Context, input *StructuredPolicySearchInput) (*StructuredPolicySearchOutput, error) {
	if h.router == nil {
		return nil, errServiceUnavailable("structured policy search")
	}

	k := constants.DefaultSearchK
	if input.Body.TopK != nil {
		k = *input.Body.TopK
	}

	result, err := h.router.Route(ctx, input.Body.Query, k)
	if err != nil {
		return nil, NewAPIError(err)
	}

	body := StructuredPolicySearchResponseBody{
		Success:        result.Status == routing.StatusOK,
		Data:           result.Results,
		TablesSearched: result.TablesSearched,
		TotalResults:   len(result.Results),
		Query:          input.Body.Query,
	}
	if body.Data == nil {
		body.Data = []models.PolicyMatch{}
	}
	if body.TablesSearched == nil {
		body.TablesSearched = []string{}
	}

	return &StructuredPolicySearchOutput{Body: body}, nil
}

// ConceptSearchInput represents a concept search request.
type ConceptSearchInput struct {
	Body struct {
		Query string `json:"query,omitempty" doc:"Traveller situation or interest to match against known concepts. Must not be empty."`
		TopK  *int   `json:"top_k,omitempty" doc:"Number of concepts to return, 1 to 50. Defaults to 5."`
	}
}

// ConceptSearchOutput represents a concept search response.
type ConceptSearchOutput struct {
	Body ConceptSearchResponseBody
}

// ConceptSearchResponseBody carries the matched concept descriptions.
type ConceptSearchResponseBody struct {
	Results []string `json:"results" doc:"Concept descriptions, best match first"`
	Count   int      `json:"count"`
	Query   string   `json:"query" doc:"Echo of the request query"`
}

// ConceptSearch finds concept descriptions similar to the query.
func (h *SearchHandler) ConceptSearch(ctx context.Context, input *ConceptSearchInput) (*ConceptSearchOutput, error) {
	if h.concepts == nil {
		return nil, errServiceUnavailable("concept search")
	}

	k := constants.DefaultSearchK
	if input.Body.TopK != nil {
		k = *input.Body.TopK
	}

	results, err := h.concepts.Search(ctx, input.Body.Query, k)
	if err != nil {
		return nil, NewAPIError(err)
	}
	if results == nil {
		results = []string{}
	}

	return &ConceptSearchOutput{Body: ConceptSearchResponseBody{
		Results: results,
		Count:   len(results),
		Query:   input.Body.Query,
	}}, nil
}
