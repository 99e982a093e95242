package handlers

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/wandersure/wandersure-api/internal/constants"
	"github.com/wandersure/wandersure-api/internal/models"
	"github.com/wandersure/wandersure-api/internal/quotation"
	"github.com/wandersure/wandersure-api/internal/service"
)

// PaymentOrchestrator drives the checkout lifecycle for policy purchases.
type PaymentOrchestrator interface {
	Initiate(ctx context.Context, params service.InitiateParams) (*models.PaymentRecord, error)
	Status(ctx context.Context, paymentIntentID string) (*models.PaymentRecord, error)
	Complete(ctx context.Context, paymentIntentID string) (*models.PolicyRecord, error)
	Cancel(ctx context.Context, paymentIntentID, reason string) (*models.PaymentRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.PaymentRecord, error)
}

// PurchaseHandler handles the purchase lifecycle endpoints.
type PurchaseHandler struct {
	payments PaymentOrchestrator
}

// NewPurchaseHandler creates a new purchase handler.
func NewPurchaseHandler(payments PaymentOrchestrator) *PurchaseHandler {
	return &PurchaseHandler{payments: payments}
}

// InsuredPartyInput is one traveller to cover on the issued policy.
type InsuredPartyInput struct {
	FirstName      string `json:"first_name" minLength:"1"`
	LastName       string `json:"last_name" minLength:"1"`
	BirthDate      string `json:"birth_date" doc:"YYYY-MM-DD"`
	PassportNumber string `json:"passport_number,omitempty"`
}

// MainContactInput is the policyholder contact.
type MainContactInput struct {
	FirstName string `json:"first_name" minLength:"1"`
	LastName  string `json:"last_name" minLength:"1"`
	Email     string `json:"email" format:"email"`
	Phone     string `json:"phone,omitempty"`
	Country   string `json:"country,omitempty"`
}

// SelectionInputBody carries the chosen offer and the payloads policy
// issuance needs after payment. Traveller details are sealed before storage.
type SelectionInputBody struct {
	OfferID        string              `json:"offer_id,omitempty" doc:"Offer chosen from the quote response"`
	QuotationRef   string              `json:"quotation_ref,omitempty" doc:"Quotation ID from the pricing partner"`
	InsuredParties []InsuredPartyInput `json:"insured_parties,omitempty"`
	MainContact    *MainContactInput   `json:"main_contact,omitempty"`
	PricingRaw     json.RawMessage     `json:"pricing_raw,omitempty" doc:"Raw pricing response, replayed at issuance"`
}

// InitiatePurchaseInput represents a purchase initiation request.
type InitiatePurchaseInput struct {
	Body struct {
		UserID        string              `json:"user_id,omitempty" doc:"Tenant key of the purchasing traveller"`
		QuoteID       string              `json:"quote_id,omitempty" doc:"Quote this payment settles. One active payment per quote."`
		Amount        float64             `json:"amount,omitempty" doc:"Premium in major currency units. Must be positive."`
		Currency      string              `json:"currency,omitempty" doc:"Three-letter code; server default applies when empty"`
		ProductName   string              `json:"product_name,omitempty" doc:"Product code or display name shown on the checkout page"`
		CustomerEmail string              `json:"customer_email,omitempty" doc:"Receipt email"`
		Selection     *SelectionInputBody `json:"selection,omitempty" doc:"Chosen offer and issuance payloads"`
	}
}

// InitiatePurchaseOutput represents a newly started checkout.
type InitiatePurchaseOutput struct {
	Body InitiatePurchaseResponseBody
}

// InitiatePurchaseResponseBody is the checkout view returned to the agent.
type InitiatePurchaseResponseBody struct {
	PaymentIntentID   string     `json:"payment_intent_id"`
	CheckoutURL       string     `json:"checkout_url" doc:"Send the traveller here to pay"`
	ExternalSessionID string     `json:"external_session_id,omitempty"`
	Amount            float64    `json:"amount" doc:"Premium in major currency units"`
	Currency          string     `json:"currency"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// InitiatePurchase starts a checkout for a quote. A second initiation while
// a pending or completed payment exists for the quote returns 409 with the
// existing payment_intent_id in the detail.
func (h *PurchaseHandler) InitiatePurchase(ctx context.Context, input *InitiatePurchaseInput) (*InitiatePurchaseOutput, error) {
	if h.payments == nil {
		return nil, errServiceUnavailable("purchases")
	}

	params := service.InitiateParams{
		UserID:        input.Body.UserID,
		QuoteID:       input.Body.QuoteID,
		AmountMinor:   int64(math.Round(input.Body.Amount * 100)),
		Currency:      input.Body.Currency,
		ProductName:   constants.ResolveProductName(ctx, input.Body.ProductName),
		CustomerEmail: input.Body.CustomerEmail,
		Selection:     convertSelection(input.Body.Selection),
	}

	record, err := h.payments.Initiate(ctx, params)
	if err != nil {
		return nil, NewAPIError(err)
	}

	return &InitiatePurchaseOutput{Body: InitiatePurchaseResponseBody{
		PaymentIntentID:   record.PaymentIntentID,
		CheckoutURL:       record.CheckoutURL,
		ExternalSessionID: record.ExternalSessionID,
		Amount:            record.Amount(),
		Currency:          record.Currency,
		ExpiresAt:         record.ExpiresAt,
	}}, nil
}

func convertSelection(in *SelectionInputBody) *service.SelectionInput {
	if in == nil {
		return nil
	}

	out := &service.SelectionInput{
		OfferID:      in.OfferID,
		QuotationRef: in.QuotationRef,
		PricingRaw:   in.PricingRaw,
	}
	for _, p := range in.InsuredParties {
		out.InsuredParties = append(out.InsuredParties, quotation.InsuredParty{
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			BirthDate:      p.BirthDate,
			PassportNumber: p.PassportNumber,
		})
	}
	if in.MainContact != nil {
		out.MainContact = &quotation.Contact{
			FirstName: in.MainContact.FirstName,
			LastName:  in.MainContact.LastName,
			Email:     in.MainContact.Email,
			Phone:     in.MainContact.Phone,
			Country:   in.MainContact.Country,
		}
	}
	return out
}

// GetPaymentStatusInput identifies a payment by its local intent ID.
type GetPaymentStatusInput struct {
	PaymentIntentID string `path:"payment_intent_id" doc:"Local payment intent ID from initiation"`
}

// GetPaymentStatusOutput is the current payment record view.
type GetPaymentStatusOutput struct {
	Body models.PaymentRecord
}

// GetPaymentStatus returns the current state of a payment.
func (h *PurchaseHandler) GetPaymentStatus(ctx context.Context, input *GetPaymentStatusInput) (*GetPaymentStatusOutput, error) {
	if h.payments == nil {
		return nil, errServiceUnavailable("purchases")
	}

	record, err := h.payments.Status(ctx, input.PaymentIntentID)
	if err != nil {
		return nil, NewAPIError(err)
	}

	return &GetPaymentStatusOutput{Body: *record}, nil
}

// CompletePurchaseInput identifies the paid payment to finalize.
type CompletePurchaseInput struct {
	PaymentIntentID string `path:"payment_intent_id" doc:"Local payment intent ID from initiation"`
}

// CompletePurchaseOutput is the issued policy.
type CompletePurchaseOutput struct {
	Body models.PolicyRecord
}

// CompletePurchase issues the policy for a payment the webhook has already
// moved to completed. A payment still pending returns 412.
func (h *PurchaseHandler) CompletePurchase(ctx context.Context, input *CompletePurchaseInput) (*CompletePurchaseOutput, error) {
	if h.payments == nil {
		return nil, errServiceUnavailable("purchases")
	}

	policy, err := h.payments.Complete(ctx, input.PaymentIntentID)
	if err != nil {
		return nil, NewAPIError(err)
	}

	return &CompletePurchaseOutput{Body: *policy}, nil
}

// CancelPaymentInput identifies the payment to cancel plus an optional reason.
type CancelPaymentInput struct {
	PaymentIntentID string `path:"payment_intent_id" doc:"Local payment intent ID from initiation"`
	Body            struct {
		Reason string `json:"reason,omitempty" doc:"Recorded as the failure reason"`
	}
}

// CancelPaymentOutput is the cancelled payment record view.
type CancelPaymentOutput struct {
	Body models.PaymentRecord
}

// CancelPayment cancels a payment that has not completed. The external
// session is cancelled best-effort; the local record always transitions.
func (h *PurchaseHandler) CancelPayment(ctx context.Context, input *CancelPaymentInput) (*CancelPaymentOutput, error) {
	if h.payments == nil {
		return nil, errServiceUnavailable("purchases")
	}

	record, err := h.payments.Cancel(ctx, input.PaymentIntentID, input.Body.Reason)
	if err != nil {
		return nil, NewAPIError(err)
	}

	return &CancelPaymentOutput{Body: *record}, nil
}

// ListUserPaymentsInput represents a payment history request.
type ListUserPaymentsInput struct {
	UserID string `path:"user_id" doc:"Tenant key of the traveller"`
	Limit  int    `query:"limit" minimum:"1" maximum:"100" default:"10" doc:"Maximum records to return"`
}

// ListUserPaymentsOutput represents a payment history response.
type ListUserPaymentsOutput struct {
	Body ListUserPaymentsResponseBody
}

// ListUserPaymentsResponseBody carries payment records newest first.
type ListUserPaymentsResponseBody struct {
	Payments []*models.PaymentRecord `json:"payments"`
	Count    int                     `json:"count"`
}

// ListUserPayments returns the user's payment history, newest first.
func (h *PurchaseHandler) ListUserPayments(ctx context.Context, input *ListUserPaymentsInput) (*ListUserPaymentsOutput, error) {
	if h.payments == nil {
		return nil, errServiceUnavailable("purchases")
	}

	limit := input.Limit
	if limit == 0 {
		limit = constants.DefaultListLimit
	}

	payments, err := h.payments.ListByUser(ctx, input.UserID, limit)
	if err != nil {
		return nil, NewAPIError(err)
	}
	if payments == nil {
		payments = []*models.PaymentRecord{}
	}

	return &ListUserPaymentsOutput{Body: ListUserPaymentsResponseBody{
		Payments: payments,
		Count:    len(payments),
	}}, nil
}
