package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
)

// CheckoutSession is the provider-side session backing a payment.
type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
	ExpiresAt   time.Time
}

// CheckoutParams describes the hosted checkout session to create. The
// PaymentIntentID becomes the session's client_reference_id, which is how
// webhook events find their way back to the local record.
type CheckoutParams struct {
	PaymentIntentID string
	AmountMinor     int64
	Currency        string
	ProductName     string
	CustomerEmail   string
	ExpiresAt       time.Time
}

// CheckoutProvider creates and expires hosted checkout sessions.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	// ExpireSession invalidates an open session during cancel. Best-effort;
	// an unexpired session eventually times out on the provider side.
	ExpireSession(ctx context.Context, sessionID string) error
}

// StripeCheckout implements CheckoutProvider with Stripe hosted checkout.
type StripeCheckout struct {
	successURL string
	cancelURL  string
	logger     *slog.Logger
}

// StripeCheckoutConfig configures the Stripe checkout provider.
type StripeCheckoutConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Logger     *slog.Logger
}

// NewStripeCheckout creates a new Stripe checkout provider.
func NewStripeCheckout(cfg StripeCheckoutConfig) *StripeCheckout {
	stripe.Key = cfg.SecretKey

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeCheckout{
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}
}

// CreateSession creates a hosted checkout session for one payment.
func (p *StripeCheckout) CreateSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(params.PaymentIntentID),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ExpiresAt:         stripe.Int64(params.ExpiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		// payment_intent.* events carry no client_reference_id, so the
		// local id rides along as intent metadata as well.
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"payment_intent_id": params.PaymentIntentID},
		},
	}
	sessionParams.Context = ctx
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	start := time.Now()
	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	p.logger.Info("checkout session created",
		"session_id", sess.ID,
		"client_reference_id", params.PaymentIntentID,
		"amount_minor", params.AmountMinor,
		"currency", params.Currency,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	expires := params.ExpiresAt
	if sess.ExpiresAt > 0 {
		expires = time.Unix(sess.ExpiresAt, 0)
	}

	return &CheckoutSession{
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
		ExpiresAt:   expires,
	}, nil
}

// ExpireSession invalidates an open checkout session.
func (p *StripeCheckout) ExpireSession(ctx context.Context, sessionID string) error {
	expireParams := &stripe.CheckoutSessionExpireParams{}
	expireParams.Context = ctx

	if _, err := session.Expire(sessionID, expireParams); err != nil {
		return fmt.Errorf("failed to expire checkout session %s: %w", sessionID, err)
	}

	return nil
}
