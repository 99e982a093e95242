package handlers

import (
	"context"

	"github.com/wandersure/wandersure-api/internal/claims"
	"github.com/wandersure/wandersure-api/internal/constants"
)

// ClaimsAnalyzer runs the claims insight pipeline for an analytical question.
type ClaimsAnalyzer interface {
	Analyze(ctx context.Context, query string, topicCount int) (*claims.Report, error)
}

// ClaimsHandler handles claims analytics endpoints.
type ClaimsHandler struct {
	analyzer ClaimsAnalyzer
}

// NewClaimsHandler creates a new claims handler.
func NewClaimsHandler(analyzer ClaimsAnalyzer) *ClaimsHandler {
	return &ClaimsHandler{analyzer: analyzer}
}

// ClaimsInsightsInput represents a claims insights request.
type ClaimsInsightsInput struct {
	Body struct {
		Query  string `json:"query,omitempty" doc:"Analytical question about historical claims. Must not be empty."`
		SQLNum *int   `json:"sql_num,omitempty" doc:"Number of analysis topics to fan out, 1 to 10. Defaults to 4."`
	}
}

// ClaimsInsightsOutput represents a claims insights response.
type ClaimsInsightsOutput struct {
	Body ClaimsInsightsResponseBody
}

// ClaimsInsightsResponseBody carries the synthesized insights.
type ClaimsInsightsResponseBody struct {
	Status   int                  `json:"status" doc:"0 on success, 1 when planning or synthesis failed"`
	Insights string               `json:"insights" doc:"Numbered insight summary, or the failure message"`
	RunID    string               `json:"run_id,omitempty" doc:"Correlates log lines from this analysis run"`
	Topics   []claims.TopicResult `json:"topics,omitempty" doc:"Per-topic outcome detail"`
}

// ClaimsInsights fans the question out into SQL-backed analysis topics and
// synthesizes the findings. Runs in the extended timeout class; the
// synthesis stage alone can take minutes.
func (h *ClaimsHandler) ClaimsInsights(ctx context.Context, input *ClaimsInsightsInput) (*ClaimsInsightsOutput, error) {
	if h.analyzer == nil {
		return nil, errServiceUnavailable("claims insights")
	}

	n := constants.DefaultClaimsTopics
	if input.Body.SQLNum != nil {
		n = *input.Body.SQLNum
	}

	report, err := h.analyzer.Analyze(ctx, input.Body.Query, n)
	if err != nil {
		return nil, NewAPIError(err)
	}

	return &ClaimsInsightsOutput{Body: ClaimsInsightsResponseBody{
		Status:   report.Status,
		Insights: report.Summary,
		RunID:    report.RunID,
		Topics:   report.Topics,
	}}, nil
}
