// Package quotation is a typed client for the insurance issuance API. It
// covers the two calls the platform needs, pricing a trip and purchasing a
// bound policy, and carries no business logic of its own.
package quotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wandersure/wandersure-api/internal/errs"
)

const (
	defaultTimeout   = 30 * time.Second
	bodyFragmentSize = 512
)

// Trip types accepted by the pricing endpoint.
const (
	TripOneWay    = "OW"
	TripRoundTrip = "RT"
)

// APIError is a non-2xx reply from the issuance API. BodyFragment holds at
// most the first 512 bytes of the response body.
type APIError struct {
	Status       int
	BodyFragment string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("issuance API returned status %d: %s", e.Status, e.BodyFragment)
}

// Config holds configuration for the quotation client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client communicates with the issuance API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a quotation client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Traveller is one insured person on a quote, identified by age only.
type Traveller struct {
	Age int `json:"age"`
}

// QuoteRequest is the pricing call body.
type QuoteRequest struct {
	TripType           string      `json:"trip_type"`
	DepartureDate      string      `json:"departure_date"`
	ReturnDate         string      `json:"return_date,omitempty"`
	OriginCountry      string      `json:"origin_country"`
	DestinationCountry string      `json:"destination_country"`
	Travellers         []Traveller `json:"travellers"`
	Currency           string      `json:"currency,omitempty"`
}

func (r QuoteRequest) validate() error {
	if r.TripType != TripOneWay && r.TripType != TripRoundTrip {
		return errs.Newf(errs.KindInvalidArgument, "trip_type must be %s or %s", TripOneWay, TripRoundTrip)
	}
	if r.TripType == TripRoundTrip && r.ReturnDate == "" {
		return errs.New(errs.KindInvalidArgument, "return_date is required for round trips")
	}
	if r.DepartureDate == "" {
		return errs.New(errs.KindInvalidArgument, "departure_date is required")
	}
	if r.DestinationCountry == "" {
		return errs.New(errs.KindInvalidArgument, "destination_country is required")
	}
	if len(r.Travellers) == 0 {
		return errs.New(errs.KindInvalidArgument, "at least one traveller is required")
	}
	return nil
}

// Offer is one priced product inside a quote.
type Offer struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	TotalPrice  float64 `json:"total_price"`
	Currency    string  `json:"currency"`
}

// QuoteResponse is the pricing reply. Raw keeps the undecoded body so a
// later purchase can be reconstructed without guessing at upstream fields.
type QuoteResponse struct {
	QuotationID string          `json:"quotation_id"`
	Offers      []Offer         `json:"offers"`
	Raw         json.RawMessage `json:"-"`
}

// Pricing prices a trip. Round trips must carry a return date.
func (c *Client) Pricing(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var quote QuoteResponse
	raw, err := c.post(ctx, "/pricing", req, &quote)
	if err != nil {
		return nil, err
	}
	quote.Raw = raw
	return &quote, nil
}

// InsuredParty identifies one person covered by the policy being bound.
type InsuredParty struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	BirthDate      string `json:"birth_date"`
	PassportNumber string `json:"passport_number,omitempty"`
}

// Contact is the policyholder's contact block.
type Contact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Country   string `json:"country,omitempty"`
}

// PurchaseRequest is the issuance call body.
type PurchaseRequest struct {
	QuotationID    string         `json:"quotation_id"`
	ProductID      string         `json:"product_id"`
	InsuredParties []InsuredParty `json:"insured_parties"`
	MainContact    Contact        `json:"main_contact"`
}

func (r PurchaseRequest) validate() error {
	if r.QuotationID == "" {
		return errs.New(errs.KindInvalidArgument, "quotation_id is required")
	}
	if r.ProductID == "" {
		return errs.New(errs.KindInvalidArgument, "product_id is required")
	}
	if len(r.InsuredParties) == 0 {
		return errs.New(errs.KindInvalidArgument, "at least one insured party is required")
	}
	if r.MainContact.Email == "" {
		return errs.New(errs.KindInvalidArgument, "main contact email is required")
	}
	return nil
}

// PurchaseResponse is the issuance reply.
type PurchaseResponse struct {
	PurchaseID   string          `json:"purchase_id"`
	PolicyNumber string          `json:"policy_number"`
	Status       string          `json:"status"`
	Raw          json.RawMessage `json:"-"`
}

// Purchase binds a policy for a previously priced quotation.
func (c *Client) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var purchase PurchaseResponse
	raw, err := c.post(ctx, "/purchase", req, &purchase)
	if err != nil {
		return nil, err
	}
	purchase.Raw = raw
	return &purchase, nil
}

// post sends a request to the issuance API and decodes the reply into out.
// The raw body is returned alongside so callers can persist it.
func (c *Client) post(ctx context.Context, path string, payload any, out any) (json.RawMessage, error) {
	startTime := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "marshal issuance request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "create issuance request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("issuance request failed",
			"path", path,
			"error", err,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return nil, errs.Wrap(errs.KindUnavailable, "issuance API unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, "read issuance response", err)
	}

	durationMs := time.Since(startTime).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, BodyFragment: truncateFragment(respBody)}
		c.logger.Error("issuance API error",
			"path", path,
			"status_code", resp.StatusCode,
			"duration_ms", durationMs,
		)
		kind := errs.KindInvalidArgument
		if resp.StatusCode >= 500 {
			kind = errs.KindUnavailable
		}
		return nil, errs.Wrap(kind, "issuance API call failed", apiErr)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "decode issuance response", err)
	}

	c.logger.Info("issuance API call",
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", durationMs,
	)
	return json.RawMessage(respBody), nil
}

func truncateFragment(body []byte) string {
	if len(body) > bodyFragmentSize {
		body = body[:bodyFragmentSize]
	}
	return string(body)
}
