package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wandersure/wandersure-api/internal/errs"
)

func testClient(t *testing.T, serverURL, format string) *Client {
	t.Helper()
	return New(Config{
		Provider:   format,
		APIKey:     "test-key",
		BaseURL:    serverURL,
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
	}, nil)
}

func userMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

func TestChatOpenAIFormat(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	res, err := c.Chat(context.Background(), "gpt-4o-mini", userMessage("hi"), CallOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("status = %q (%s: %s)", res.Status, res.ErrorKind, res.ErrorMessage)
	}
	if res.Content != "hello" || res.InputTokens != 12 || res.OutputTokens != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q, want Bearer test-key", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["temperature"] != 0.2 {
		t.Errorf("default temperature = %v, want 0.2", gotBody["temperature"])
	}
	if gotBody["max_tokens"] != float64(4096) {
		t.Errorf("default max_tokens = %v, want 4096", gotBody["max_tokens"])
	}
	if _, ok := gotBody["response_format"]; ok {
		t.Error("response_format must be absent without JSONMode")
	}
}

func TestChatJSONMode(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{}"}, "finish_reason": "stop"}]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	if _, err := c.Chat(context.Background(), "gpt-4o-mini", userMessage("hi"), CallOptions{JSONMode: true}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	rf, ok := gotBody["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", gotBody["response_format"])
	}
}

func TestChatAnthropicFormat(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"content": [{"text": "partial answer"}],
			"stop_reason": "max_tokens",
			"usage": {"input_tokens": 20, "output_tokens": 4096}
		}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatAnthropic)
	messages := []Message{
		{Role: RoleSystem, Content: "you are a router"},
		{Role: RoleUser, Content: "hi"},
	}
	res, err := c.Chat(context.Background(), "claude-sonnet", messages, CallOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("path = %q, want /v1/messages", gotPath)
	}
	if gotKey != "test-key" || gotVersion != "2023-06-01" {
		t.Errorf("auth headers = (%q, %q)", gotKey, gotVersion)
	}
	if gotBody["system"] != "you are a router" {
		t.Errorf("system = %v, want lifted system prompt", gotBody["system"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Errorf("messages = %v, system role must not be sent inline", gotBody["messages"])
	}
	if res.FinishReason != "length" || !res.IsTruncated() {
		t.Errorf("finish_reason = %q, want length for max_tokens stop", res.FinishReason)
	}
	if res.Content != "partial answer" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestChatOllamaFormat(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"message": {"content": "local answer"},
			"done_reason": "stop",
			"prompt_eval_count": 9, "eval_count": 2
		}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOllama)
	res, err := c.Chat(context.Background(), "llama3", userMessage("hi"), CallOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if gotPath != "/api/chat" {
		t.Errorf("path = %q, want /api/chat", gotPath)
	}
	if gotBody["stream"] != false {
		t.Error("ollama requests must disable streaming")
	}
	if res.Content != "local answer" || res.InputTokens != 9 || res.OutputTokens != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "recovered"}, "finish_reason": "stop"}]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	res, err := c.Chat(context.Background(), "gpt-4o-mini", userMessage("hi"), CallOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Status != StatusOK || res.Content != "recovered" {
		t.Fatalf("result = %+v, want recovery on third attempt", res)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestChatRateLimitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "slow down"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	res, err := c.Chat(context.Background(), "gpt-4o-mini", userMessage("hi"), CallOptions{})
	if err != nil {
		t.Fatalf("remote failure must not surface as error, got %v", err)
	}
	if res.Status != StatusError || res.ErrorKind != ErrKindRateLimited {
		t.Errorf("result = %+v, want rate_limited error status", res)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want initial + 2 retries", got)
	}
}

func TestChatClientErrorIsFatal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad model"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	res, err := c.Chat(context.Background(), "gpt-4o-mini", userMessage("hi"), CallOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.ErrorKind != ErrKindClient {
		t.Errorf("kind = %q, want %q", res.ErrorKind, ErrKindClient)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, 4xx must not be retried", got)
	}
}

func TestChatTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // all connections now refused

	c := testClient(t, server.URL, FormatOpenAI)
	res, err := c.Chat(context.Background(), "gpt-4o-mini", userMessage("hi"), CallOptions{})
	if err != nil {
		t.Fatalf("transport failure must not surface as error, got %v", err)
	}
	if res.Status != StatusError || res.ErrorKind != ErrKindTransport {
		t.Errorf("result = %+v, want transport error status", res)
	}
}

func TestChatEmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	res, err := c.Chat(context.Background(), "gpt-4o-mini", userMessage("hi"), CallOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.ErrorKind != ErrKindEmptyResponse {
		t.Errorf("kind = %q, want %q", res.ErrorKind, ErrKindEmptyResponse)
	}
}

func TestChatMisuse(t *testing.T) {
	c := New(Config{Provider: FormatOpenAI}, nil)

	if _, err := c.Chat(context.Background(), "", userMessage("hi"), CallOptions{}); errs.KindOf(err) != errs.KindInvalidArgument {
		t.Errorf("empty model: kind = %v, want invalid_argument", errs.KindOf(err))
	}
	if _, err := c.Chat(context.Background(), "gpt-4o-mini", nil, CallOptions{}); errs.KindOf(err) != errs.KindInvalidArgument {
		t.Errorf("empty messages: kind = %v, want invalid_argument", errs.KindOf(err))
	}
}

func TestCallResultErr(t *testing.T) {
	ok := &CallResult{Status: StatusOK}
	if ok.Err() != nil {
		t.Error("successful result must map to nil error")
	}
	remote := &CallResult{Status: StatusError, ErrorKind: ErrKindServer, ErrorMessage: "boom"}
	if errs.KindOf(remote.Err()) != errs.KindUnavailable {
		t.Errorf("server failure kind = %v, want unavailable", errs.KindOf(remote.Err()))
	}
	schema := &CallResult{Status: StatusError, ErrorKind: ErrKindParse, ErrorMessage: "bad json"}
	if errs.KindOf(schema.Err()) != errs.KindRuntime {
		t.Errorf("parse failure kind = %v, want runtime", errs.KindOf(schema.Err()))
	}
}

func TestEmbed(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		// Deliberately out of order; index is authoritative.
		_, _ = w.Write([]byte(`{"data": [
			{"index": 1, "embedding": [0.5, 0.6]},
			{"index": 0, "embedding": [0.1, 0.2]}
		]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	vectors, err := c.Embed(context.Background(), "text-embedding-3-large", []string{"a", "b"}, 2)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if gotPath != "/embeddings" {
		t.Errorf("path = %q, want /embeddings", gotPath)
	}
	if gotBody["dimensions"] != float64(2) {
		t.Errorf("dimensions = %v, want 2", gotBody["dimensions"])
	}
	if len(vectors) != 2 || vectors[0][0] != 0.1 || vectors[1][0] != 0.5 {
		t.Errorf("vectors = %v, want index order restored", vectors)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [0.1]}]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	if _, err := c.Embed(context.Background(), "text-embedding-3-large", []string{"a", "b"}, 0); err == nil {
		t.Fatal("expected error on vector count mismatch")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	c := New(Config{Provider: FormatOpenAI}, nil)
	vectors, err := c.Embed(context.Background(), "text-embedding-3-large", nil, 0)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("vectors = %v, want empty", vectors)
	}
}

func TestEmbedRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [0.1]}]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, FormatOpenAI)
	vectors, err := c.Embed(context.Background(), "text-embedding-3-large", []string{"a"}, 0)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || calls.Load() != 2 {
		t.Errorf("vectors = %v after %d calls, want recovery on second", vectors, calls.Load())
	}
}
