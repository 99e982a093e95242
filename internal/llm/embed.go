package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/wandersure/wandersure-api/internal/errs"
)

const embedTimeout = 60 * time.Second

// Embed returns one vector per input text via an OpenAI-compatible
// /embeddings endpoint. When dimensions > 0 it is passed through to the
// provider. Transient failures are retried with the same backoff policy as
// Chat; the final failure surfaces as a kinded error.
func (c *Client) Embed(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, error) {
	if model == "" {
		return nil, errs.New(errs.KindInvalidArgument, "embedding model is required")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	release, err := c.gates.acquire(ctx, model)
	if err != nil {
		return nil, err
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(c.cfg.RetryBase, attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		vectors, retryable, err := c.doEmbed(ctx, model, texts, dimensions)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	c.logger.Error("embedding call failed", "model", model, "texts", len(texts), "error", lastErr)
	return nil, lastErr
}

func (c *Client) doEmbed(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, bool, error) {
	reqBody := map[string]any{
		"model": model,
		"input": texts,
	}
	if dimensions > 0 {
		reqBody["dimensions"] = dimensions
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindRuntime, "marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, errs.Wrap(errs.KindRuntime, "create embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuthHeaders(req, FormatOpenAI, c.cfg.APIKey)

	client := &http.Client{Timeout: embedTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, true, errs.Wrap(errs.KindUnavailable, "embedding request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errs.Wrap(errs.KindUnavailable, "read embedding response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, errs.Newf(errs.KindUnavailable, "embedding API status %d: %s", resp.StatusCode, truncateBody(respBody))
	case resp.StatusCode != http.StatusOK:
		return nil, false, errs.Newf(errs.KindRuntime, "embedding API status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, errs.Wrap(errs.KindRuntime, "parse embedding response", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, false, errs.Newf(errs.KindRuntime,
			"embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Data))
	}

	// Providers may return entries out of order; the index field is
	// authoritative.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	return vectors, false, nil
}
