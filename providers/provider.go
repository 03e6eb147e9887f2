// Package providers defines the Provider interface and the shared request,
// response, and error types used across all LLM vendor adapters.
//
// An adapter wraps exactly one vendor API behind Complete. Adapters never
// cache, queue, or fall back to another vendor; those concerns belong to the
// orchestrator that calls them.
package providers

import (
	"context"
	"errors"
)

// Message role constants shared by all adapters.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultSystemPrompt is applied by every adapter when the caller supplies no
// system message of its own.
const DefaultSystemPrompt = "You are a legal information assistant for Canadian law. " +
	"Provide accurate, helpful information about Canadian legal topics. " +
	"Always clarify that you provide legal information, not legal advice, " +
	"and that users should consult a licensed lawyer for advice about their situation."

// Provider defines the interface every LLM vendor adapter must implement.
type Provider interface {
	Name() string
	// DefaultModel is the model used when a request does not name one.
	DefaultModel() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Message represents a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the vendor-neutral chat completion request. Adapters translate
// it to their wire format.
type Request struct {
	// Model may be empty, in which case the adapter's default model is used.
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	// JSONResponse asks the vendor for a JSON-object answer. Adapters whose
	// API has no native JSON mode approximate it with prompt instructions.
	JSONResponse bool `json:"json_response,omitempty"`
}

// Validate returns an error if the request is missing required fields or
// contains out-of-range parameter values.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	return nil
}

// Response is a chat completion response normalised across vendors.
type Response struct {
	ID       string `json:"id,omitempty"`
	Model    string `json:"model"`
	Provider string `json:"provider,omitempty"`
	Content  string `json:"content"`
	Usage    Usage  `json:"usage"`
}

// Usage carries token consumption statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
