package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DeepSeekProvider implements the Provider interface for DeepSeek. It is the
// tertiary tier in the default fallback order. The API is OpenAI-compatible.
type DeepSeekProvider struct {
	Base
	httpClient *http.Client
}

// NewDeepSeek creates a new DeepSeek provider.
func NewDeepSeek(apiKey string, baseURL string) (*DeepSeekProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &DeepSeekProvider{
		Base:       Base{name: "deepseek", apiKey: apiKey, baseURL: baseURL, defaultModel: "deepseek-chat"},
		httpClient: &http.Client{},
	}, nil
}

type deepseekResponseFormat struct {
	Type string `json:"type"`
}

type deepseekRequest struct {
	Model          string                  `json:"model"`
	Messages       []Message               `json:"messages"`
	Temperature    *float64                `json:"temperature,omitempty"`
	MaxTokens      *int                    `json:"max_tokens,omitempty"`
	ResponseFormat *deepseekResponseFormat `json:"response_format,omitempty"`
}

type deepseekChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type deepseekResponse struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Choices []deepseekChoice `json:"choices"`
	Usage   Usage            `json:"usage"`
}

type deepseekErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request and returns the full response.
func (p *DeepSeekProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	req = withDefaults(req, p.defaultModel)

	deepseekReq := deepseekRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONResponse {
		deepseekReq.ResponseFormat = &deepseekResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(deepseekReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, newTransportError(p.name, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, newTransportError(p.name, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp deepseekErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, newAPIError(p.name, httpResp.StatusCode, errResp.Error.Message)
		}
		return nil, newAPIError(p.name, httpResp.StatusCode, string(respBody))
	}

	var deepseekResp deepseekResponse
	if err := json.Unmarshal(respBody, &deepseekResp); err != nil {
		return nil, &Error{Provider: p.name, Code: CodeBadResponse, Message: "failed to unmarshal response: " + err.Error(), Err: err}
	}
	if len(deepseekResp.Choices) == 0 {
		return nil, &Error{Provider: p.name, Code: CodeBadResponse, Message: "empty choices in completion"}
	}

	return &Response{
		ID:       deepseekResp.ID,
		Model:    deepseekResp.Model,
		Provider: p.name,
		Content:  deepseekResp.Choices[0].Message.Content,
		Usage:    deepseekResp.Usage,
	}, nil
}
