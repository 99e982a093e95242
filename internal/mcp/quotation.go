package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wandersure/wandersure-api/internal/quotation"
)

type quoteTraveller struct {
	Age int `json:"age" jsonschema:"traveller age in completed years"`
}

type getQuoteArgs struct {
	TripType           string           `json:"trip_type" jsonschema:"OW for one-way or RT for round trip"`
	DepartureDate      string           `json:"departure_date" jsonschema:"departure date, YYYY-MM-DD"`
	ReturnDate         string           `json:"return_date,omitempty" jsonschema:"return date, YYYY-MM-DD, required for round trips"`
	OriginCountry      string           `json:"origin_country,omitempty" jsonschema:"ISO 3166-1 alpha-2 origin country"`
	DestinationCountry string           `json:"destination_country" jsonschema:"ISO 3166-1 alpha-2 destination country"`
	Travellers         []quoteTraveller `json:"travellers" jsonschema:"travellers to insure"`
	Currency           string           `json:"currency,omitempty" jsonschema:"ISO 4217 currency code, defaults to the platform currency"`
}

func (s *Server) registerQuotationTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get_quote",
		Description: "Price a trip with the insurance provider. Returns a quotation ID and the available product offers with their total prices.",
	}, s.getQuote)
}

func (s *Server) getQuote(ctx context.Context, req *mcpsdk.CallToolRequest, args getQuoteArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Quotes == nil {
		return notConfigured("quotation"), nil, nil
	}

	quoteReq := quotation.QuoteRequest{
		TripType:           args.TripType,
		DepartureDate:      args.DepartureDate,
		ReturnDate:         args.ReturnDate,
		OriginCountry:      args.OriginCountry,
		DestinationCountry: args.DestinationCountry,
		Currency:           args.Currency,
	}
	for _, t := range args.Travellers {
		quoteReq.Travellers = append(quoteReq.Travellers, quotation.Traveller{Age: t.Age})
	}

	resp, err := s.deps.Quotes.Pricing(ctx, quoteReq)
	if err != nil {
		return toolError(err), nil, nil
	}

	return jsonResult(resp), nil, nil
}
