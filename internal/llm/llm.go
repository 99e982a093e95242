// Package llm is the gateway for chat and embedding calls to the configured
// model provider. Remote failures are reported inside CallResult rather than
// as errors; the error return of Chat is reserved for caller-side problems
// (bad arguments, cancelled context).
package llm

import (
	"time"

	"github.com/wandersure/wandersure-api/internal/errs"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallResult statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error kinds reported in CallResult.ErrorKind.
const (
	ErrKindTransport     = "transport"
	ErrKindRateLimited   = "rate_limited"
	ErrKindServer        = "server_error"
	ErrKindClient        = "client_error"
	ErrKindParse         = "parse"
	ErrKindEmptyResponse = "empty_response"
)

// CallOptions configures a chat call.
type CallOptions struct {
	Temperature float64       // Default: 0.2
	MaxTokens   int           // Default: 4096
	Timeout     time.Duration // Default: 120s; synthesis callers pass longer
	JSONMode    bool          // Request JSON response format (OpenAI-compatible APIs only)
}

// DefaultCallOptions returns the defaults used when a field is zero.
func DefaultCallOptions() CallOptions {
	return CallOptions{
		Temperature: 0.2,
		MaxTokens:   4096,
		Timeout:     120 * time.Second,
	}
}

func (o CallOptions) withDefaults() CallOptions {
	def := DefaultCallOptions()
	if o.Temperature == 0 {
		o.Temperature = def.Temperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.Timeout == 0 {
		o.Timeout = def.Timeout
	}
	return o
}

// CallResult holds the outcome of a chat call including token usage. Status
// is StatusError for remote failures, with ErrorKind and ErrorMessage set.
type CallResult struct {
	Status       string
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string // "stop", "length", ... - "length" indicates truncation
	Model        string
	ErrorKind    string
	ErrorMessage string
}

// IsTruncated returns true if the response was cut off at the token limit.
func (r *CallResult) IsTruncated() bool {
	return r.FinishReason == "length"
}

// Err converts a failed result into a kinded error, nil for successful ones.
func (r *CallResult) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	kind := errs.KindUnavailable
	if r.ErrorKind == ErrKindClient || r.ErrorKind == ErrKindParse || r.ErrorKind == ErrKindEmptyResponse {
		kind = errs.KindRuntime
	}
	return errs.New(kind, "llm call failed ("+r.ErrorKind+"): "+r.ErrorMessage)
}
