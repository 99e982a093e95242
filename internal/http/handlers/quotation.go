package handlers

import (
	"context"

	"github.com/wandersure/wandersure-api/internal/quotation"
)

// PricingClient fetches offers from the external pricing partner.
type PricingClient interface {
	Pricing(ctx context.Context, req quotation.QuoteRequest) (*quotation.QuoteResponse, error)
}

// QuotationHandler handles quote retrieval.
type QuotationHandler struct {
	pricing PricingClient
}

// NewQuotationHandler creates a new quotation handler.
func NewQuotationHandler(pricing PricingClient) *QuotationHandler {
	return &QuotationHandler{pricing: pricing}
}

// TravellerInput identifies one traveller on a quote request.
type TravellerInput struct {
	Age int `json:"age" minimum:"0" maximum:"120" doc:"Traveller age in years"`
}

// GetQuoteInput represents a quote request. Field semantics follow the
// pricing partner's contract; the client validates before calling out.
type GetQuoteInput struct {
	Body struct {
		TripType           string           `json:"trip_type,omitempty" doc:"OW for one-way, RT for round trip"`
		DepartureDate      string           `json:"departure_date,omitempty" doc:"Trip start date (YYYY-MM-DD)"`
		ReturnDate         string           `json:"return_date,omitempty" doc:"Trip end date (YYYY-MM-DD), required for RT"`
		OriginCountry      string           `json:"origin_country,omitempty" doc:"Country of residence"`
		DestinationCountry string           `json:"destination_country,omitempty" doc:"Destination country"`
		Travellers         []TravellerInput `json:"travellers,omitempty" doc:"Travellers to cover, at least one"`
		Currency           string           `json:"currency,omitempty" doc:"Preferred quote currency"`
	}
}

// GetQuoteOutput represents a quote response, passed through from the
// pricing partner.
type GetQuoteOutput struct {
	Body quotation.QuoteResponse
}

// GetQuote prices a trip and returns the partner's offers.
func (h *QuotationHandler) GetQuote(ctx context.Context, input *GetQuoteInput) (*GetQuoteOutput, error) {
	if h.pricing == nil {
		return nil, errServiceUnavailable("quotation")
	}

	req := quotation.QuoteRequest{
		TripType:           input.Body.TripType,
		DepartureDate:      input.Body.DepartureDate,
		ReturnDate:         input.Body.ReturnDate,
		OriginCountry:      input.Body.OriginCountry,
		DestinationCountry: input.Body.DestinationCountry,
		Travellers:         make([]quotation.Traveller, len(input.Body.Travellers)),
		Currency:           input.Body.Currency,
	}
	for i, t := range input.Body.Travellers {
		req.Travellers[i] = quotation.Traveller{Age: t.Age}
	}

	quote, err := h.pricing.Pricing(ctx, req)
	if err != nil {
		return nil, NewAPIError(err)
	}

	return &GetQuoteOutput{Body: *quote}, nil
}
