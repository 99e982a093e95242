package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wandersure/wandersure-api/internal/constants"
)

type claimsInsightsArgs struct {
	Query  string `json:"query" jsonschema:"analytical question about historical claims, e.g. loss ratios or top causes by destination"`
	SQLNum *int   `json:"sql_num,omitempty" jsonschema:"number of analysis topics to fan out, 1-10, defaults to 4"`
}

type claimsInsightsResult struct {
	Status   int    `json:"status"`
	Insights string `json:"insights"`
	RunID    string `json:"run_id,omitempty"`
}

func (s *Server) registerClaimsTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "claims_insights",
		Description: "Generate a data-driven narrative report from the historical claims warehouse. Plans analysis topics, runs read-only SQL for each, and synthesises the findings. Slow: allow several minutes.",
	}, s.claimsInsights)
}

func (s *Server) claimsInsights(ctx context.Context, req *mcpsdk.CallToolRequest, args claimsInsightsArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Claims == nil {
		return notConfigured("claims insights"), nil, nil
	}

	n := constants.DefaultClaimsTopics
	if args.SQLNum != nil {
		n = *args.SQLNum
	}

	report, err := s.deps.Claims.Analyze(ctx, args.Query, n)
	if err != nil {
		return toolError(err), nil, nil
	}

	return jsonResult(claimsInsightsResult{
		Status:   report.Status,
		Insights: report.Summary,
		RunID:    report.RunID,
	}), nil, nil
}
