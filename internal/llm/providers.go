package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Supported provider API formats.
const (
	FormatOpenAI    = "openai"
	FormatAnthropic = "anthropic"
	FormatOllama    = "ollama"
)

var errEmptyReply = errors.New("no content in provider reply")

func defaultBaseURL(format string) string {
	switch format {
	case FormatAnthropic:
		return "https://api.anthropic.com"
	case FormatOllama:
		return "http://localhost:11434"
	default:
		return "https://api.openai.com/v1"
	}
}

func chatEndpoint(format string) string {
	switch format {
	case FormatAnthropic:
		return "/v1/messages"
	case FormatOllama:
		return "/api/chat"
	default:
		return "/chat/completions"
	}
}

// setAuthHeaders sets the authentication headers for the provider format.
func setAuthHeaders(req *http.Request, format, apiKey string) {
	switch format {
	case FormatAnthropic:
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case FormatOllama:
		// Local daemon, no auth.
	default:
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}
}

// buildChatBody shapes the request for the provider format. Anthropic takes
// the system prompt as a top-level field rather than a message role; Ollama
// must be asked explicitly not to stream.
func buildChatBody(format, model string, messages []Message, opts CallOptions) map[string]any {
	switch format {
	case FormatAnthropic:
		var system strings.Builder
		chat := make([]Message, 0, len(messages))
		for _, m := range messages {
			if m.Role == RoleSystem {
				if system.Len() > 0 {
					system.WriteString("\n\n")
				}
				system.WriteString(m.Content)
				continue
			}
			chat = append(chat, m)
		}
		body := map[string]any{
			"model":       model,
			"messages":    chat,
			"temperature": opts.Temperature,
			"max_tokens":  opts.MaxTokens,
		}
		if system.Len() > 0 {
			body["system"] = system.String()
		}
		return body
	case FormatOllama:
		return map[string]any{
			"model":    model,
			"messages": messages,
			"stream":   false,
			"options": map[string]any{
				"temperature": opts.Temperature,
				"num_predict": opts.MaxTokens,
			},
		}
	default:
		body := map[string]any{
			"model":       model,
			"messages":    messages,
			"temperature": opts.Temperature,
			"max_tokens":  opts.MaxTokens,
		}
		if opts.JSONMode {
			body["response_format"] = map[string]string{"type": "json_object"}
		}
		return body
	}
}

type parsedReply struct {
	content      string
	inputTokens  int
	outputTokens int
	finishReason string
}

// parseReply extracts the text response and token usage from the provider
// response format.
func parseReply(format string, body []byte) (*parsedReply, error) {
	switch format {
	case FormatAnthropic:
		return parseAnthropicReply(body)
	case FormatOllama:
		return parseOllamaReply(body)
	default:
		return parseOpenAIReply(body)
	}
}

func parseOpenAIReply(body []byte) (*parsedReply, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"` // "stop", "length", "content_filter"
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errEmptyReply
	}
	return &parsedReply{
		content:      resp.Choices[0].Message.Content,
		inputTokens:  resp.Usage.PromptTokens,
		outputTokens: resp.Usage.CompletionTokens,
		finishReason: resp.Choices[0].FinishReason,
	}, nil
}

func parseAnthropicReply(body []byte) (*parsedReply, error) {
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"` // "end_turn", "max_tokens", "stop_sequence"
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, errEmptyReply
	}

	reply := &parsedReply{
		content:      resp.Content[0].Text,
		inputTokens:  resp.Usage.InputTokens,
		outputTokens: resp.Usage.OutputTokens,
	}
	// Normalize stop_reason to the OpenAI-style finish_reason vocabulary.
	switch resp.StopReason {
	case "max_tokens":
		reply.finishReason = "length"
	case "end_turn", "stop_sequence":
		reply.finishReason = "stop"
	default:
		reply.finishReason = resp.StopReason
	}
	return reply, nil
}

func parseOllamaReply(body []byte) (*parsedReply, error) {
	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		DoneReason      string `json:"done_reason"` // "stop", "length"
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse ollama response: %w", err)
	}
	if resp.Message.Content == "" {
		return nil, errEmptyReply
	}
	return &parsedReply{
		content:      resp.Message.Content,
		inputTokens:  resp.PromptEvalCount,
		outputTokens: resp.EvalCount,
		finishReason: resp.DoneReason,
	}, nil
}
