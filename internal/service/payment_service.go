package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wandersure/wandersure-api/internal/config"
	"github.com/wandersure/wandersure-api/internal/crypto"
	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/models"
	"github.com/wandersure/wandersure-api/internal/quotation"
	"github.com/wandersure/wandersure-api/internal/repository"
)

// IssuanceClient is the slice of the quotation API used to turn a paid
// selection into a bound policy.
type IssuanceClient interface {
	Purchase(ctx context.Context, req quotation.PurchaseRequest) (*quotation.PurchaseResponse, error)
}

// SelectionInput carries the chosen offer and the payloads the issuance
// call needs, submitted alongside a payment initiation. Insured parties and
// the contact are sealed before they reach storage.
type SelectionInput struct {
	OfferID        string
	QuotationRef   string
	InsuredParties []quotation.InsuredParty
	MainContact    *quotation.Contact
	PricingRaw     json.RawMessage
}

// InitiateParams are the inputs for starting a payment.
type InitiateParams struct {
	UserID        string
	QuoteID       string
	AmountMinor   int64
	Currency      string
	ProductName   string
	CustomerEmail string
	Selection     *SelectionInput
}

// PaymentService owns the payment state machine: one record per checkout
// activity, pending until a webhook or an operator moves it to a terminal
// state. Only this service and the webhook receiver write payment_status.
type PaymentService struct {
	repos           *repository.Repositories
	checkout        CheckoutProvider
	issuance        IssuanceClient
	sealer          *crypto.Encryptor
	currencyDefault string
	sessionTTL      time.Duration
	logger          *slog.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(cfg *config.Config, repos *repository.Repositories, checkout CheckoutProvider, issuance IssuanceClient, sealer *crypto.Encryptor, logger *slog.Logger) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}

	return &PaymentService{
		repos:           repos,
		checkout:        checkout,
		issuance:        issuance,
		sealer:          sealer,
		currencyDefault: cfg.PaymentCurrencyDefault,
		sessionTTL:      cfg.CheckoutSessionTTL,
		logger:          logger,
	}
}

// Initiate starts a payment for a quote. The local record is written in
// pending before the provider hears anything; if the checkout session cannot
// be created the record is marked failed and no session exists.
func (s *PaymentService) Initiate(ctx context.Context, params InitiateParams) (*models.PaymentRecord, error) {
	if params.UserID == "" {
		return nil, errs.New(errs.KindInvalidArgument, "user_id is required")
	}
	if params.QuoteID == "" {
		return nil, errs.New(errs.KindInvalidArgument, "quote_id is required")
	}
	if params.AmountMinor <= 0 {
		return nil, errs.Newf(errs.KindInvalidArgument, "amount must be positive, got %d", params.AmountMinor)
	}
	if params.ProductName == "" {
		return nil, errs.New(errs.KindInvalidArgument, "product_name is required")
	}

	currency := strings.ToLower(params.Currency)
	if currency == "" {
		currency = s.currencyDefault
	}

	existing, err := s.repos.Payment.GetActiveByQuote(ctx, params.QuoteID)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to check for active payments", err)
	}
	if existing != nil {
		return nil, duplicateActivePayment(params.QuoteID, existing)
	}

	paymentIntentID, err := newPaymentIntentID()
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to generate payment intent id", err)
	}

	record := &models.PaymentRecord{
		PaymentIntentID: paymentIntentID,
		UserID:          params.UserID,
		QuoteID:         params.QuoteID,
		AmountMinor:     params.AmountMinor,
		Currency:        currency,
		ProductName:     params.ProductName,
		CustomerEmail:   params.CustomerEmail,
		Status:          models.PaymentStatusPending,
	}
	if err := s.repos.Payment.Create(ctx, record); err != nil {
		if repository.IsUniqueViolation(err) {
			// Lost the race on the active-payment index; report the winner.
			winner, lookErr := s.repos.Payment.GetActiveByQuote(ctx, params.QuoteID)
			if lookErr != nil {
				winner = nil
			}
			return nil, duplicateActivePayment(params.QuoteID, winner)
		}
		return nil, errs.Wrap(errs.KindRuntime, "failed to create payment record", err)
	}

	if err := s.saveSelection(ctx, params, paymentIntentID); err != nil {
		s.failPayment(ctx, paymentIntentID, "selection could not be stored")
		return nil, err
	}

	sess, err := s.checkout.CreateSession(ctx, CheckoutParams{
		PaymentIntentID: paymentIntentID,
		AmountMinor:     params.AmountMinor,
		Currency:        currency,
		ProductName:     params.ProductName,
		CustomerEmail:   params.CustomerEmail,
		ExpiresAt:       time.Now().Add(s.sessionTTL),
	})
	if err != nil {
		s.failPayment(ctx, paymentIntentID, "checkout session creation failed")
		return nil, errs.Wrap(errs.KindUnavailable, "checkout session creation failed", err)
	}

	if err := s.repos.Payment.AttachCheckoutSession(ctx, paymentIntentID, sess.CheckoutURL, sess.SessionID, sess.ExpiresAt); err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to store checkout session", err)
	}

	s.logger.Info("payment initiated",
		"payment_intent_id", paymentIntentID,
		"quote_id", params.QuoteID,
		"user_id", params.UserID,
		"amount_minor", params.AmountMinor,
		"currency", currency,
		"external_session_id", sess.SessionID,
	)

	return s.Status(ctx, paymentIntentID)
}

// Status returns the current payment record.
func (s *PaymentService) Status(ctx context.Context, paymentIntentID string) (*models.PaymentRecord, error) {
	if paymentIntentID == "" {
		return nil, errs.New(errs.KindInvalidArgument, "payment_intent_id is required")
	}

	payment, err := s.repos.Payment.GetByID(ctx, paymentIntentID)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to load payment", err)
	}
	if payment == nil {
		return nil, errs.Newf(errs.KindNotFound, "payment %s not found", paymentIntentID)
	}

	return payment, nil
}

// Complete turns a completed payment into an issued policy. When the
// selection carries a quotation reference, the policy is bound through the
// issuance API; an issuance failure degrades to a locally recorded policy
// flagged for follow-up. Calling Complete again returns the existing policy.
func (s *PaymentService) Complete(ctx context.Context, paymentIntentID string) (*models.PolicyRecord, error) {
	payment, err := s.Status(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, errs.Newf(errs.KindPreconditionFailed, "payment %s is %s; the purchase can only be finalised once payment has completed", paymentIntentID, payment.Status)
	}

	existing, err := s.repos.Policy.GetByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to load policy", err)
	}
	if existing != nil {
		return existing, nil
	}

	selection, err := s.loadSelection(ctx, payment)
	if err != nil {
		return nil, err
	}

	policy := &models.PolicyRecord{
		PaymentIntentID: paymentIntentID,
		ProductName:     payment.ProductName,
		PolicyNumber:    provisionalPolicyNumber(),
		IssuanceStatus:  models.IssuanceDeferred,
	}

	if selection != nil && selection.QuotationRef != "" {
		purchase, err := s.issuePolicy(ctx, selection)
		if err != nil {
			// Degraded issuance: the local policy record still exists,
			// flagged for operator follow-up.
			s.logger.Error("policy issuance failed",
				"payment_intent_id", paymentIntentID,
				"quotation_ref", selection.QuotationRef,
				"error", err,
			)
		} else {
			policy.PolicyNumber = purchase.PolicyNumber
			policy.ExternalPurchaseID = purchase.PurchaseID
			policy.IssuanceStatus = models.IssuanceConfirmed
		}
	} else {
		s.logger.Warn("completed payment has no quotation reference; policy recorded locally only",
			"payment_intent_id", paymentIntentID,
			"quote_id", payment.QuoteID,
		)
	}

	if err := s.repos.Policy.Create(ctx, policy); err != nil {
		if repository.IsUniqueViolation(err) {
			// A concurrent Complete won; hand back its policy.
			winner, lookErr := s.repos.Policy.GetByPaymentIntent(ctx, paymentIntentID)
			if lookErr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, errs.Wrap(errs.KindRuntime, "failed to store policy", err)
	}

	s.logger.Info("policy recorded",
		"payment_intent_id", paymentIntentID,
		"policy_id", policy.PolicyID,
		"policy_number", policy.PolicyNumber,
		"issuance_status", policy.IssuanceStatus,
	)

	return policy, nil
}

// Cancel moves a pending payment to cancelled. Completed payments cannot be
// cancelled; repeating a cancel on an already terminal record is a no-op.
// The provider session is expired best-effort.
func (s *PaymentService) Cancel(ctx context.Context, paymentIntentID, reason string) (*models.PaymentRecord, error) {
	payment, err := s.Status(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusCompleted {
		return nil, errs.Newf(errs.KindPreconditionFailed, "payment %s is completed and cannot be cancelled", paymentIntentID)
	}
	if payment.Status != models.PaymentStatusPending {
		return payment, nil
	}

	if payment.ExternalSessionID != "" {
		if err := s.checkout.ExpireSession(ctx, payment.ExternalSessionID); err != nil {
			s.logger.Warn("failed to expire checkout session",
				"payment_intent_id", paymentIntentID,
				"session_id", payment.ExternalSessionID,
				"error", err,
			)
		}
	}

	if reason == "" {
		reason = "cancelled by user"
	}
	moved, err := s.repos.Payment.TransitionStatus(ctx, paymentIntentID, models.PaymentStatusCancelled, reason)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to cancel payment", err)
	}

	updated, err := s.Status(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if !moved && updated.Status == models.PaymentStatusCompleted {
		// A webhook completed the payment while the cancel was in flight.
		return nil, errs.Newf(errs.KindPreconditionFailed, "payment %s is completed and cannot be cancelled", paymentIntentID)
	}

	s.logger.Info("payment cancelled",
		"payment_intent_id", paymentIntentID,
		"quote_id", payment.QuoteID,
		"reason", reason,
	)

	return updated, nil
}

// ListByUser returns a user's payments, newest first.
func (s *PaymentService) ListByUser(ctx context.Context, userID string, limit int) ([]*models.PaymentRecord, error) {
	if userID == "" {
		return nil, errs.New(errs.KindInvalidArgument, "user_id is required")
	}

	payments, err := s.repos.Payment.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to list payments", err)
	}

	return payments, nil
}

// GetByQuote returns the active payment for a quote, falling back to the
// most recent historical one.
func (s *PaymentService) GetByQuote(ctx context.Context, quoteID string) (*models.PaymentRecord, error) {
	if quoteID == "" {
		return nil, errs.New(errs.KindInvalidArgument, "quote_id is required")
	}

	active, err := s.repos.Payment.GetActiveByQuote(ctx, quoteID)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to load payment", err)
	}
	if active != nil {
		return active, nil
	}

	history, err := s.repos.Payment.GetByQuote(ctx, quoteID)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to load payment", err)
	}
	if len(history) == 0 {
		return nil, errs.Newf(errs.KindNotFound, "no payment found for quote %s", quoteID)
	}

	return history[0], nil
}

// ExpireStale transitions pending payments whose checkout window has closed.
// Called periodically by the expiry worker.
func (s *PaymentService) ExpireStale(ctx context.Context) (int64, error) {
	count, err := s.repos.Payment.MarkExpired(ctx, time.Now(), s.sessionTTL)
	if err != nil {
		return 0, errs.Wrap(errs.KindRuntime, "failed to expire payments", err)
	}

	if count > 0 {
		s.logger.Info("expired stale payments", "count", count)
	}

	return count, nil
}

// HandleCheckoutCompleted processes a checkout.session.completed event.
// Re-deliveries and events for unknown payments are logged and swallowed.
func (s *PaymentService) HandleCheckoutCompleted(ctx context.Context, eventID, clientReferenceID, sessionID, externalIntent string) error {
	fresh, err := s.repos.WebhookEvent.Record(ctx, eventID, "checkout.session.completed", clientReferenceID)
	if err != nil {
		return errs.Wrap(errs.KindRuntime, "failed to record webhook event", err)
	}
	if !fresh {
		s.logger.Debug("webhook re-delivery ignored", "event_id", eventID)
		return nil
	}

	payment, err := s.locateBySession(ctx, clientReferenceID, sessionID)
	if err != nil {
		return err
	}
	if payment == nil {
		s.logger.Warn("webhook for unknown payment",
			"event_id", eventID,
			"client_reference_id", clientReferenceID,
			"session_id", sessionID,
		)
		return nil
	}

	moved, err := s.repos.Payment.ApplyWebhookTransition(ctx, payment.PaymentIntentID, models.PaymentStatusCompleted, repository.WebhookStamp{
		SessionID:      sessionID,
		ExternalIntent: externalIntent,
		ProcessedAt:    time.Now(),
	})
	if err != nil {
		return errs.Wrap(errs.KindRuntime, "failed to apply webhook transition", err)
	}
	if !moved {
		s.logger.Info("webhook transition skipped; payment already terminal",
			"event_id", eventID,
			"payment_intent_id", payment.PaymentIntentID,
			"payment_status", payment.Status,
		)
		return nil
	}

	s.logger.Info("payment completed",
		"payment_intent_id", payment.PaymentIntentID,
		"quote_id", payment.QuoteID,
		"external_session_id", sessionID,
	)

	return nil
}

// HandleCheckoutExpired processes a checkout.session.expired event.
func (s *PaymentService) HandleCheckoutExpired(ctx context.Context, eventID, clientReferenceID, sessionID string) error {
	fresh, err := s.repos.WebhookEvent.Record(ctx, eventID, "checkout.session.expired", clientReferenceID)
	if err != nil {
		return errs.Wrap(errs.KindRuntime, "failed to record webhook event", err)
	}
	if !fresh {
		s.logger.Debug("webhook re-delivery ignored", "event_id", eventID)
		return nil
	}

	payment, err := s.locateBySession(ctx, clientReferenceID, sessionID)
	if err != nil {
		return err
	}
	if payment == nil {
		s.logger.Warn("webhook for unknown payment",
			"event_id", eventID,
			"client_reference_id", clientReferenceID,
			"session_id", sessionID,
		)
		return nil
	}

	moved, err := s.repos.Payment.ApplyWebhookTransition(ctx, payment.PaymentIntentID, models.PaymentStatusExpired, repository.WebhookStamp{
		SessionID:   sessionID,
		ProcessedAt: time.Now(),
	})
	if err != nil {
		return errs.Wrap(errs.KindRuntime, "failed to apply webhook transition", err)
	}
	if !moved {
		s.logger.Info("webhook transition skipped; payment already terminal",
			"event_id", eventID,
			"payment_intent_id", payment.PaymentIntentID,
			"payment_status", payment.Status,
		)
		return nil
	}

	s.logger.Info("payment expired",
		"payment_intent_id", payment.PaymentIntentID,
		"quote_id", payment.QuoteID,
	)

	return nil
}

// HandlePaymentFailed processes a payment_intent.payment_failed event. The
// event carries no client_reference_id; the record is located through the
// intent metadata or the stored external intent id.
func (s *PaymentService) HandlePaymentFailed(ctx context.Context, eventID, localReference, externalIntent, reason string) error {
	var payment *models.PaymentRecord
	var err error

	if localReference != "" {
		payment, err = s.repos.Payment.GetByID(ctx, localReference)
		if err != nil {
			return errs.Wrap(errs.KindRuntime, "failed to load payment", err)
		}
	}
	if payment == nil && externalIntent != "" {
		payment, err = s.repos.Payment.GetByExternalIntent(ctx, externalIntent)
		if err != nil {
			return errs.Wrap(errs.KindRuntime, "failed to load payment", err)
		}
	}

	recordedRef := localReference
	if payment != nil {
		recordedRef = payment.PaymentIntentID
	}
	fresh, err := s.repos.WebhookEvent.Record(ctx, eventID, "payment_intent.payment_failed", recordedRef)
	if err != nil {
		return errs.Wrap(errs.KindRuntime, "failed to record webhook event", err)
	}
	if !fresh {
		s.logger.Debug("webhook re-delivery ignored", "event_id", eventID)
		return nil
	}
	if payment == nil {
		s.logger.Warn("webhook for unknown payment",
			"event_id", eventID,
			"external_payment_intent", externalIntent,
		)
		return nil
	}

	if reason == "" {
		reason = "payment failed"
	}
	moved, err := s.repos.Payment.ApplyWebhookTransition(ctx, payment.PaymentIntentID, models.PaymentStatusFailed, repository.WebhookStamp{
		ExternalIntent: externalIntent,
		FailureReason:  reason,
		ProcessedAt:    time.Now(),
	})
	if err != nil {
		return errs.Wrap(errs.KindRuntime, "failed to apply webhook transition", err)
	}
	if !moved {
		s.logger.Info("webhook transition skipped; payment already terminal",
			"event_id", eventID,
			"payment_intent_id", payment.PaymentIntentID,
			"payment_status", payment.Status,
		)
		return nil
	}

	s.logger.Info("payment failed",
		"payment_intent_id", payment.PaymentIntentID,
		"quote_id", payment.QuoteID,
		"failure_reason", reason,
	)

	return nil
}

// saveSelection stores or links the selection for the quote. With an
// explicit selection the payloads are sealed and upserted; without one, any
// earlier selection for the quote is linked to the new payment.
func (s *PaymentService) saveSelection(ctx context.Context, params InitiateParams, paymentIntentID string) error {
	if params.Selection == nil {
		if err := s.repos.Selection.AttachPaymentIntent(ctx, params.QuoteID, paymentIntentID); err != nil {
			return errs.Wrap(errs.KindRuntime, "failed to link selection", err)
		}
		return nil
	}

	sel := params.Selection
	record := &models.SelectionRecord{
		QuoteID:         params.QuoteID,
		UserID:          params.UserID,
		OfferID:         sel.OfferID,
		ProductName:     params.ProductName,
		QuotationRef:    sel.QuotationRef,
		PaymentIntentID: paymentIntentID,
	}

	if len(sel.InsuredParties) > 0 {
		sealed, err := s.sealer.SealJSON(sel.InsuredParties)
		if err != nil {
			return errs.Wrap(errs.KindRuntime, "failed to seal insured parties", err)
		}
		record.InsuredEnc = sealed
	}
	if sel.MainContact != nil {
		sealed, err := s.sealer.SealJSON(sel.MainContact)
		if err != nil {
			return errs.Wrap(errs.KindRuntime, "failed to seal contact", err)
		}
		record.ContactEnc = sealed
	}
	if len(sel.PricingRaw) > 0 {
		record.PricingJSON = string(sel.PricingRaw)
	}

	if err := s.repos.Selection.Upsert(ctx, record); err != nil {
		return errs.Wrap(errs.KindRuntime, "failed to store selection", err)
	}

	return nil
}

// loadSelection finds the selection for a payment, preferring the direct
// payment link over the quote.
func (s *PaymentService) loadSelection(ctx context.Context, payment *models.PaymentRecord) (*models.SelectionRecord, error) {
	selection, err := s.repos.Selection.GetByPaymentIntent(ctx, payment.PaymentIntentID)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to load selection", err)
	}
	if selection == nil {
		selection, err = s.repos.Selection.GetByQuote(ctx, payment.QuoteID)
		if err != nil {
			return nil, errs.Wrap(errs.KindRuntime, "failed to load selection", err)
		}
	}

	return selection, nil
}

// issuePolicy reconstructs the purchase call from the sealed selection
// payloads and sends it to the issuance API.
func (s *PaymentService) issuePolicy(ctx context.Context, selection *models.SelectionRecord) (*quotation.PurchaseResponse, error) {
	if s.issuance == nil {
		return nil, fmt.Errorf("issuance API is not configured")
	}

	var insured []quotation.InsuredParty
	if selection.InsuredEnc != "" {
		if err := s.sealer.OpenJSON(selection.InsuredEnc, &insured); err != nil {
			return nil, fmt.Errorf("failed to open insured parties: %w", err)
		}
	}

	var contact quotation.Contact
	if selection.ContactEnc != "" {
		if err := s.sealer.OpenJSON(selection.ContactEnc, &contact); err != nil {
			return nil, fmt.Errorf("failed to open contact: %w", err)
		}
	}

	return s.issuance.Purchase(ctx, quotation.PurchaseRequest{
		QuotationID:    selection.QuotationRef,
		ProductID:      selection.OfferID,
		InsuredParties: insured,
		MainContact:    contact,
	})
}

// locateBySession finds the payment for a checkout event, trying the
// client reference first and the session id as fallback.
func (s *PaymentService) locateBySession(ctx context.Context, clientReferenceID, sessionID string) (*models.PaymentRecord, error) {
	if clientReferenceID != "" {
		payment, err := s.repos.Payment.GetByID(ctx, clientReferenceID)
		if err != nil {
			return nil, errs.Wrap(errs.KindRuntime, "failed to load payment", err)
		}
		if payment != nil {
			return payment, nil
		}
	}

	payment, err := s.repos.Payment.GetByExternalSession(ctx, sessionID)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "failed to load payment", err)
	}

	return payment, nil
}

// failPayment marks a payment failed after a provider error. Failures here
// are logged, not returned; the caller already has the primary error.
func (s *PaymentService) failPayment(ctx context.Context, paymentIntentID, reason string) {
	if _, err := s.repos.Payment.TransitionStatus(ctx, paymentIntentID, models.PaymentStatusFailed, reason); err != nil {
		s.logger.Error("failed to mark payment failed",
			"payment_intent_id", paymentIntentID,
			"error", err,
		)
	}
}

// duplicateActivePayment builds the duplicate error, naming the winning
// payment when it is known.
func duplicateActivePayment(quoteID string, existing *models.PaymentRecord) error {
	if existing != nil {
		return errs.Newf(errs.KindDuplicate, "an active payment already exists for quote %s (payment_intent_id %s)", quoteID, existing.PaymentIntentID)
	}
	return errs.Newf(errs.KindDuplicate, "an active payment already exists for quote %s", quoteID)
}

// newPaymentIntentID returns a random 128-bit identifier in base-16.
func newPaymentIntentID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// provisionalPolicyNumber makes a local policy number for records written
// before upstream confirmation exists.
func provisionalPolicyNumber() string {
	return "WS-" + ulid.Make().String()
}
