// Package nlp provides the chat-completion client for FeliChat.
//
// The client speaks the OpenAI-compatible /chat/completions wire format and
// delegates all transport concerns (timeout, retries, backoff) to the
// apicall executor.  It adds no failure kinds of its own beyond
// payload-shape errors: a 2xx response missing the expected fields is
// reported as a malformed-response envelope, never an uncontrolled error.
package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felichat/felichat/internal/felichat/apicall"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-3.5-turbo"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn's contribution to the conversation, in the shape the
// chat-completion API expects.  Messages are immutable once created and
// their ordering is chronological.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Config configures the chat-completion client.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint.  Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gpt-3.5-turbo when empty.
	Model string

	// MaxReplyTokens is the default token allowance for a reply.
	// Individual calls may pass a smaller allowance (memory compaction does).
	MaxReplyTokens int

	// Temperature, FrequencyPenalty and PresencePenalty are the sampling
	// parameters embedded in every request.
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64

	// Stop is the list of stop sequences sent with every request.
	Stop []string
}

// CompletionResult is the envelope-shaped outcome of one completion call.
// Text is populated only when Status is apicall.StatusOK.
type CompletionResult struct {
	Status  apicall.Status
	Message string
	Text    string
}

// OK reports whether the completion succeeded.
func (r CompletionResult) OK() bool {
	return r.Status == apicall.StatusOK
}

// Client calls the chat-completion endpoint.  Safe for concurrent use.
type Client struct {
	cfg    Config
	caller *apicall.Client
}

// New returns a Client that issues completions through the given executor.
func New(cfg Config, caller *apicall.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Client{cfg: cfg, caller: caller}
}

// --- minimal chat-completion wire types ---

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	MaxTokens        int       `json:"max_tokens"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
	Stop             []string  `json:"stop,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type chatChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Complete sends messages to the chat model and returns the reply text with
// leading/trailing whitespace trimmed.  maxReplyTokens overrides the
// configured reply allowance when positive; memory compaction passes reduced
// allowances here.  Transport failures from the executor propagate verbatim
// (status and message passthrough).
func (c *Client) Complete(ctx context.Context, messages []Message, maxReplyTokens int) CompletionResult {
	if maxReplyTokens <= 0 {
		maxReplyTokens = c.cfg.MaxReplyTokens
	}

	body := chatRequest{
		Model:            c.cfg.Model,
		Messages:         messages,
		Temperature:      c.cfg.Temperature,
		MaxTokens:        maxReplyTokens,
		FrequencyPenalty: c.cfg.FrequencyPenalty,
		PresencePenalty:  c.cfg.PresencePenalty,
		Stop:             c.cfg.Stop,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}

	env := c.caller.PostJSON(ctx, c.cfg.BaseURL+"/chat/completions", headers, body)
	if !env.OK() {
		return CompletionResult{Status: env.Status, Message: env.Message}
	}

	var resp chatResponse
	if err := json.Unmarshal(env.Body, &resp); err != nil {
		return CompletionResult{
			Status:  apicall.StatusMalformed,
			Message: fmt.Sprintf("nlp: decode API response: %v", err),
		}
	}

	if resp.Error != nil {
		return CompletionResult{
			Status:  apicall.StatusMalformed,
			Message: fmt.Sprintf("nlp: API error (%s): %s", resp.Error.Type, resp.Error.Message),
		}
	}

	if len(resp.Choices) == 0 {
		return CompletionResult{
			Status:  apicall.StatusMalformed,
			Message: "nlp: no choices returned in completion response",
		}
	}

	return CompletionResult{
		Status:  apicall.StatusOK,
		Message: "success",
		Text:    strings.TrimSpace(resp.Choices[0].Message.Content),
	}
}
