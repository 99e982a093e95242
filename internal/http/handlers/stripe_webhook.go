package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/wandersure/wandersure-api/internal/constants"
)

// StripeEventSink applies verified checkout events to payment records.
type StripeEventSink interface {
	HandleCheckoutCompleted(ctx context.Context, eventID, clientReferenceID, sessionID, externalIntent string) error
	HandleCheckoutExpired(ctx context.Context, eventID, clientReferenceID, sessionID string) error
	HandlePaymentFailed(ctx context.Context, eventID, localReference, externalIntent, reason string) error
}

// minWebhookSecretLen keeps placeholder values ("changeme", "test") off the
// signature path; real whsec_ secrets are well past this length.
const minWebhookSecretLen = 20

// StripeWebhookHandler handles Stripe webhook events.
type StripeWebhookHandler struct {
	secret     string
	production bool
	payments   StripeEventSink
	logger     *slog.Logger
}

// NewStripeWebhookHandler creates a new Stripe webhook handler.
func NewStripeWebhookHandler(secret string, production bool, payments StripeEventSink, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		secret:     secret,
		production: production,
		payments:   payments,
		logger:     logger,
	}
}

// HandleWebhook processes incoming Stripe webhooks.
// This is a raw HTTP handler since huma doesn't handle raw body verification well.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.WebhookMaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	event, ok := h.verifyEvent(w, r, payload)
	if !ok {
		return
	}

	// Non-2xx here makes the provider redeliver; the event handlers are
	// idempotent so a retry after a transient store failure is safe.
	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "id", event.ID, "error", err)
		http.Error(w, "event processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// verifyEvent authenticates the payload. With a usable secret the provider
// signature is required; otherwise unsigned payloads pass only outside
// production.
func (h *StripeWebhookHandler) verifyEvent(w http.ResponseWriter, r *http.Request, payload []byte) (stripe.Event, bool) {
	if len(h.secret) >= minWebhookSecretLen {
		event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.secret)
		if err != nil {
			h.logger.Error("failed to verify webhook signature", "error", err)
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return stripe.Event{}, false
		}
		return event, true
	}

	if h.production {
		h.logger.Error("webhook rejected: no usable signing secret in production")
		http.Error(w, "webhook signing not configured", http.StatusBadRequest)
		return stripe.Event{}, false
	}

	h.logger.Warn("accepting UNSIGNED webhook - set STRIPE_WEBHOOK_SECRET before going live")
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to parse webhook payload", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return stripe.Event{}, false
	}
	return event, true
}

// handleEvent routes events to appropriate handlers.
func (h *StripeWebhookHandler) handleEvent(ctx context.Context, event stripe.Event) error {
	h.logger.Info("received Stripe webhook", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, event)

	case "checkout.session.expired":
		return h.handleCheckoutExpired(ctx, event)

	case "payment_intent.payment_failed":
		return h.handlePaymentFailed(ctx, event)

	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

// unmarshalEventObject decodes the event's data object into out.
func unmarshalEventObject(event stripe.Event, out any) error {
	if event.Data == nil {
		return fmt.Errorf("event %s has no data object", event.ID)
	}
	return json.Unmarshal(event.Data.Raw, out)
}

// handleCheckoutCompleted marks the referenced payment completed. The
// session's client_reference_id is the local payment_intent_id set at
// initiation.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := unmarshalEventObject(event, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	externalIntent := ""
	if session.PaymentIntent != nil {
		externalIntent = session.PaymentIntent.ID
	}

	return h.payments.HandleCheckoutCompleted(ctx, event.ID, session.ClientReferenceID, session.ID, externalIntent)
}

// handleCheckoutExpired marks the referenced payment expired.
func (h *StripeWebhookHandler) handleCheckoutExpired(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := unmarshalEventObject(event, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	return h.payments.HandleCheckoutExpired(ctx, event.ID, session.ClientReferenceID, session.ID)
}

// handlePaymentFailed marks the referenced payment failed. Failure events
// carry no client_reference_id; correlation runs through the intent
// metadata or the stored external intent id.
func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := unmarshalEventObject(event, &intent); err != nil {
		return fmt.Errorf("failed to unmarshal payment intent: %w", err)
	}

	reason := ""
	if intent.LastPaymentError != nil {
		reason = intent.LastPaymentError.Msg
	}

	return h.payments.HandlePaymentFailed(ctx, event.ID, intent.Metadata["payment_intent_id"], intent.ID, reason)
}
