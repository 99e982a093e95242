package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/wandersure/wandersure-api/internal/errs"
)

const (
	defaultMaxRetries  = 3
	defaultMaxInflight = 10
	defaultRetryBase   = 500 * time.Millisecond
	maxRetryDelay      = 8 * time.Second
	errorBodyLimit     = 512
)

// Config configures the gateway client.
type Config struct {
	Provider    string // API format: openai, anthropic or ollama
	APIKey      string
	BaseURL     string        // override for the provider default
	MaxRetries  int           // retries after the first attempt (default 3)
	MaxInflight int           // per-model in-flight cap (default 10)
	RetryBase   time.Duration // backoff base (default 500ms)
}

// Client makes chat and embedding calls against the configured provider.
// Safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger
	gates  *modelGates
}

// New creates a gateway client. Zero-valued config fields take defaults.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Provider == "" {
		cfg.Provider = FormatOpenAI
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL(cfg.Provider)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = defaultMaxInflight
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger, gates: newModelGates(cfg.MaxInflight)}
}

// Chat sends messages to model and returns the tagged result. Transport
// errors, 5xx and 429 are retried with exponential backoff and jitter; other
// 4xx and malformed replies are fatal. The error return is reserved for
// caller-side problems: empty arguments or a done context.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, opts CallOptions) (*CallResult, error) {
	if model == "" {
		return nil, errs.New(errs.KindInvalidArgument, "model is required")
	}
	if len(messages) == 0 {
		return nil, errs.New(errs.KindInvalidArgument, "messages are empty")
	}
	opts = opts.withDefaults()

	release, err := c.gates.acquire(ctx, model)
	if err != nil {
		return nil, err
	}
	defer release()

	c.logger.Debug("llm chat call",
		"provider", c.cfg.Provider,
		"model", model,
		"messages", len(messages),
		"max_tokens", opts.MaxTokens,
		"json_mode", opts.JSONMode,
	)

	var last *CallResult
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.cfg.RetryBase, attempt)
			c.logger.Debug("retrying llm chat call",
				"model", model, "attempt", attempt, "delay", delay, "last_error", last.ErrorKind)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		res, retryable := c.doChat(ctx, model, messages, opts)
		if res.Status == StatusOK || !retryable {
			if res.Status != StatusOK {
				c.logger.Error("llm chat call failed",
					"model", model, "error_kind", res.ErrorKind, "error", res.ErrorMessage)
			}
			return res, nil
		}
		last = res
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	c.logger.Error("llm chat call failed after retries",
		"model", model, "attempts", c.cfg.MaxRetries+1,
		"error_kind", last.ErrorKind, "error", last.ErrorMessage)
	return last, nil
}

// doChat performs one attempt. The bool reports whether the failure is worth
// retrying.
func (c *Client) doChat(ctx context.Context, model string, messages []Message, opts CallOptions) (*CallResult, bool) {
	body, err := json.Marshal(buildChatBody(c.cfg.Provider, model, messages, opts))
	if err != nil {
		return c.failure(model, ErrKindParse, "marshal request: "+err.Error()), false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+chatEndpoint(c.cfg.Provider), bytes.NewReader(body))
	if err != nil {
		return c.failure(model, ErrKindTransport, err.Error()), false
	}
	req.Header.Set("Content-Type", "application/json")
	setAuthHeaders(req, c.cfg.Provider, c.cfg.APIKey)

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return c.failure(model, ErrKindTransport, err.Error()), true
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.failure(model, ErrKindTransport, "read response: "+err.Error()), true
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return c.failure(model, ErrKindRateLimited, truncateBody(respBody)), true
	case resp.StatusCode >= 500:
		return c.failure(model, ErrKindServer, fmt.Sprintf("status %d: %s", resp.StatusCode, truncateBody(respBody))), true
	case resp.StatusCode != http.StatusOK:
		return c.failure(model, ErrKindClient, fmt.Sprintf("status %d: %s", resp.StatusCode, truncateBody(respBody))), false
	}

	reply, err := parseReply(c.cfg.Provider, respBody)
	if err != nil {
		kind := ErrKindParse
		if errors.Is(err, errEmptyReply) {
			kind = ErrKindEmptyResponse
		}
		return c.failure(model, kind, err.Error()), false
	}

	res := &CallResult{
		Status:       StatusOK,
		Content:      reply.content,
		InputTokens:  reply.inputTokens,
		OutputTokens: reply.outputTokens,
		FinishReason: reply.finishReason,
		Model:        model,
	}
	if res.IsTruncated() {
		c.logger.Warn("llm output truncated",
			"model", model, "output_tokens", res.OutputTokens, "max_tokens", opts.MaxTokens)
	}
	return res, false
}

func (c *Client) failure(model, kind, msg string) *CallResult {
	return &CallResult{Status: StatusError, Model: model, ErrorKind: kind, ErrorMessage: msg}
}

// backoffDelay grows the base exponentially per attempt, capped, with jitter
// on the upper half to spread out herd retries.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > maxRetryDelay || d <= 0 {
		d = maxRetryDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

func truncateBody(body []byte) string {
	if len(body) > errorBodyLimit {
		return string(body[:errorBodyLimit]) + "..."
	}
	return string(body)
}
