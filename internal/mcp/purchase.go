package mcp

import (
	"context"
	"encoding/json"
	"math"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wandersure/wandersure-api/internal/constants"
	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/models"
	"github.com/wandersure/wandersure-api/internal/quotation"
	"github.com/wandersure/wandersure-api/internal/service"
)

type insuredParty struct {
	FirstName      string `json:"first_name" jsonschema:"given name as in the passport"`
	LastName       string `json:"last_name" jsonschema:"family name as in the passport"`
	BirthDate      string `json:"birth_date" jsonschema:"date of birth, YYYY-MM-DD"`
	PassportNumber string `json:"passport_number,omitempty" jsonschema:"passport number when required by the product"`
}

type mainContact struct {
	FirstName string `json:"first_name" jsonschema:"policyholder given name"`
	LastName  string `json:"last_name" jsonschema:"policyholder family name"`
	Email     string `json:"email" jsonschema:"policyholder email"`
	Phone     string `json:"phone,omitempty" jsonschema:"policyholder phone number"`
	Country   string `json:"country,omitempty" jsonschema:"ISO 3166-1 alpha-2 residence country"`
}

type purchaseSelection struct {
	OfferID        string         `json:"offer_id,omitempty" jsonschema:"offer chosen from the quote response"`
	QuotationRef   string         `json:"quotation_ref,omitempty" jsonschema:"quotation ID from the pricing provider"`
	InsuredParties []insuredParty `json:"insured_parties,omitempty" jsonschema:"travellers to cover on the issued policy"`
	MainContact    *mainContact   `json:"main_contact,omitempty" jsonschema:"policyholder contact"`
	PricingRaw     map[string]any `json:"pricing_raw,omitempty" jsonschema:"raw pricing response, replayed at issuance"`
}

type initiatePaymentArgs struct {
	UserID        string             `json:"user_id" jsonschema:"tenant key of the purchasing traveller"`
	QuoteID       string             `json:"quote_id" jsonschema:"quote this payment settles; one active payment per quote"`
	Amount        float64            `json:"amount" jsonschema:"premium in major currency units, e.g. 49.90"`
	Currency      string             `json:"currency,omitempty" jsonschema:"ISO 4217 code, platform default when omitted"`
	ProductName   string             `json:"product_name,omitempty" jsonschema:"product code or display name shown at checkout"`
	CustomerEmail string             `json:"customer_email,omitempty" jsonschema:"receipt email"`
	Selection     *purchaseSelection `json:"selection,omitempty" jsonschema:"chosen offer and the payloads issuance needs after payment"`
}

type initiatePaymentResult struct {
	PaymentIntentID   string     `json:"payment_intent_id"`
	CheckoutURL       string     `json:"checkout_url"`
	ExternalSessionID string     `json:"external_session_id,omitempty"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

type paymentIntentArgs struct {
	PaymentIntentID string `json:"payment_intent_id" jsonschema:"local payment intent ID from initiation"`
}

type cancelPaymentArgs struct {
	PaymentIntentID string `json:"payment_intent_id" jsonschema:"local payment intent ID from initiation"`
	Reason          string `json:"reason,omitempty" jsonschema:"why the payment is being cancelled"`
}

type listUserPaymentsArgs struct {
	UserID string `json:"user_id" jsonschema:"tenant key of the traveller"`
	Limit  *int   `json:"limit,omitempty" jsonschema:"maximum records, newest first, defaults to 10"`
}

type listUserPaymentsResult struct {
	Payments []*models.PaymentRecord `json:"payments"`
	Count    int                     `json:"count"`
}

func (s *Server) registerPurchaseTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "initiate_payment",
		Description: "Start a purchase for a quoted offer. Records the selection, opens a hosted checkout session, and returns the URL the traveller must visit to pay. Fails if the quote already has an active payment.",
	}, s.initiatePayment)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get_payment_status",
		Description: "Look up the current state of a payment by its payment_intent_id.",
	}, s.getPaymentStatus)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "complete_purchase",
		Description: "Issue the policy for a completed payment. Fails while the payment is still pending; wait for the traveller to finish checkout first.",
	}, s.completePurchase)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "cancel_payment",
		Description: "Cancel a pending payment and void its checkout session.",
	}, s.cancelPayment)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "list_user_payments",
		Description: "List a traveller's payments, newest first.",
	}, s.listUserPayments)
}

func (s *Server) initiatePayment(ctx context.Context, req *mcpsdk.CallToolRequest, args initiatePaymentArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Payments == nil {
		return notConfigured("purchases"), nil, nil
	}

	params := service.InitiateParams{
		UserID:        args.UserID,
		QuoteID:       args.QuoteID,
		AmountMinor:   int64(math.Round(args.Amount * 100)),
		Currency:      args.Currency,
		ProductName:   constants.ResolveProductName(ctx, args.ProductName),
		CustomerEmail: args.CustomerEmail,
	}
	sel, err := convertPurchaseSelection(args.Selection)
	if err != nil {
		return toolError(err), nil, nil
	}
	params.Selection = sel

	record, err := s.deps.Payments.Initiate(ctx, params)
	if err != nil {
		return toolError(err), nil, nil
	}

	return jsonResult(initiatePaymentResult{
		PaymentIntentID:   record.PaymentIntentID,
		CheckoutURL:       record.CheckoutURL,
		ExternalSessionID: record.ExternalSessionID,
		Amount:            record.Amount(),
		Currency:          record.Currency,
		ExpiresAt:         record.ExpiresAt,
	}), nil, nil
}

// convertPurchaseSelection maps tool arguments onto the orchestrator's
// selection input, re-encoding the pricing object the agent passed inline.
func convertPurchaseSelection(sel *purchaseSelection) (*service.SelectionInput, error) {
	if sel == nil {
		return nil, nil
	}

	out := &service.SelectionInput{
		OfferID:      sel.OfferID,
		QuotationRef: sel.QuotationRef,
	}
	for _, p := range sel.InsuredParties {
		out.InsuredParties = append(out.InsuredParties, quotation.InsuredParty{
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			BirthDate:      p.BirthDate,
			PassportNumber: p.PassportNumber,
		})
	}
	if sel.MainContact != nil {
		out.MainContact = &quotation.Contact{
			FirstName: sel.MainContact.FirstName,
			LastName:  sel.MainContact.LastName,
			Email:     sel.MainContact.Email,
			Phone:     sel.MainContact.Phone,
			Country:   sel.MainContact.Country,
		}
	}
	if sel.PricingRaw != nil {
		raw, err := json.Marshal(sel.PricingRaw)
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidArgument, "invalid pricing_raw", err)
		}
		out.PricingRaw = raw
	}
	return out, nil
}

func (s *Server) getPaymentStatus(ctx context.Context, req *mcpsdk.CallToolRequest, args paymentIntentArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Payments == nil {
		return notConfigured("purchases"), nil, nil
	}

	record, err := s.deps.Payments.Status(ctx, args.PaymentIntentID)
	if err != nil {
		return toolError(err), nil, nil
	}

	return jsonResult(record), nil, nil
}

func (s *Server) completePurchase(ctx context.Context, req *mcpsdk.CallToolRequest, args paymentIntentArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Payments == nil {
		return notConfigured("purchases"), nil, nil
	}

	policy, err := s.deps.Payments.Complete(ctx, args.PaymentIntentID)
	if err != nil {
		return toolError(err), nil, nil
	}

	return jsonResult(policy), nil, nil
}

func (s *Server) cancelPayment(ctx context.Context, req *mcpsdk.CallToolRequest, args cancelPaymentArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Payments == nil {
		return notConfigured("purchases"), nil, nil
	}

	record, err := s.deps.Payments.Cancel(ctx, args.PaymentIntentID, args.Reason)
	if err != nil {
		return toolError(err), nil, nil
	}

	return jsonResult(record), nil, nil
}

func (s *Server) listUserPayments(ctx context.Context, req *mcpsdk.CallToolRequest, args listUserPaymentsArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Payments == nil {
		return notConfigured("purchases"), nil, nil
	}

	limit := constants.DefaultListLimit
	if args.Limit != nil {
		limit = *args.Limit
	}

	payments, err := s.deps.Payments.ListByUser(ctx, args.UserID, limit)
	if err != nil {
		return toolError(err), nil, nil
	}
	if payments == nil {
		payments = []*models.PaymentRecord{}
	}

	return jsonResult(listUserPaymentsResult{Payments: payments, Count: len(payments)}), nil, nil
}
