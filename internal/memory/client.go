// Package memory is a client for the managed conversational-memory
// provider. Items are partitioned by user_id; the provider owns storage,
// deduplication and relevance ranking.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wandersure/wandersure-api/internal/errs"
)

const (
	defaultBaseURL    = "https://api.mem0.ai/v1"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultRetryBase  = time.Second

	defaultSearchLimit = 10
	maxSearchLimit     = 100
	errorBodyLimit     = 512
)

// Config holds configuration for the memory client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	Logger     *slog.Logger
}

// Client communicates with the memory provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	logger     *slog.Logger
}

// New creates a memory client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryBase:  retryBase,
		logger:     logger,
	}
}

// Message is one turn of the conversation being memorized.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Item is one stored memory. Score is set only on search results; Event
// reports what the provider did on Add (ADD, UPDATE, DELETE, NONE).
type Item struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	Event     string         `json:"event,omitempty"`
	Score     *float64       `json:"score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
}

// Add extracts and stores memories from a conversation fragment.
func (c *Client) Add(ctx context.Context, userID string, messages []Message, metadata map[string]any) ([]Item, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "user_id must not be empty")
	}
	if len(messages) == 0 {
		return nil, errs.New(errs.KindInvalidArgument, "messages must not be empty")
	}
	body := map[string]any{
		"messages": messages,
		"user_id":  userID,
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	respBody, err := c.do(ctx, http.MethodPost, "/memories/", body)
	if err != nil {
		return nil, err
	}
	return parseItems(respBody)
}

// Search returns the user's memories ranked by relevance to query.
func (c *Client) Search(ctx context.Context, userID, query string, limit int) ([]Item, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "user_id must not be empty")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "query must not be empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	body := map[string]any{
		"query":   query,
		"user_id": userID,
		"limit":   limit,
	}
	respBody, err := c.do(ctx, http.MethodPost, "/memories/search/", body)
	if err != nil {
		return nil, err
	}
	return parseItems(respBody)
}

// All returns every memory stored for the user.
func (c *Client) All(ctx context.Context, userID string) ([]Item, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "user_id must not be empty")
	}
	path := "/memories/?" + url.Values{"user_id": {userID}}.Encode()
	respBody, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return parseItems(respBody)
}

// Delete removes one memory by id.
func (c *Client) Delete(ctx context.Context, memoryID string) error {
	if strings.TrimSpace(memoryID) == "" {
		return errs.New(errs.KindInvalidArgument, "memory_id must not be empty")
	}
	_, err := c.do(ctx, http.MethodDelete, "/memories/"+url.PathEscape(memoryID)+"/", nil)
	return err
}

// do sends one request with retries on transport failures, 429 and 5xx.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, errs.Wrap(errs.KindRuntime, "marshal memory request", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*attempt) * c.retryBase)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, errs.Wrap(errs.KindRuntime, "create memory request", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Token "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = errs.Wrap(errs.KindUnavailable, "memory API unreachable", err)
			c.logger.Warn("memory request failed", "method", method, "path", path, "attempt", attempt+1, "error", err)
			continue
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = errs.Wrap(errs.KindUnavailable, "read memory response", readErr)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = errs.Newf(errs.KindUnavailable, "memory API returned status %d", resp.StatusCode)
			c.logger.Warn("memory API transient error", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt+1)
			continue
		case resp.StatusCode == http.StatusNotFound:
			return nil, errs.New(errs.KindNotFound, "memory not found")
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, errs.Newf(errs.KindUnauthorized, "memory API rejected credentials (status %d)", resp.StatusCode)
		default:
			return nil, errs.Newf(errs.KindRuntime, "memory API returned status %d: %s", resp.StatusCode, truncateBody(respBody))
		}
	}

	c.logger.Error("memory request failed after retries", "method", method, "path", path, "error", lastErr)
	return nil, lastErr
}

// parseItems accepts both reply shapes the provider uses, a results wrapper
// and a bare array.
func parseItems(respBody []byte) ([]Item, error) {
	var wrapper struct {
		Results []Item `json:"results"`
	}
	if err := json.Unmarshal(respBody, &wrapper); err == nil && wrapper.Results != nil {
		return wrapper.Results, nil
	}
	var items []Item
	if err := json.Unmarshal(respBody, &items); err == nil {
		return items, nil
	}
	return nil, errs.New(errs.KindRuntime, "unexpected memory API response shape")
}

func truncateBody(body []byte) string {
	if len(body) > errorBodyLimit {
		body = body[:errorBodyLimit]
	}
	return string(body)
}
