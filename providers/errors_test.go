package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeFromStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    ErrorCode
	}{
		{"429 rate limit", http.StatusTooManyRequests, "slow down", CodeRateLimit},
		{"401 auth", http.StatusUnauthorized, "bad key", CodeAuth},
		{"403 auth", http.StatusForbidden, "forbidden", CodeAuth},
		{"413 token limit", http.StatusRequestEntityTooLarge, "too large", CodeTokenLimit},
		{"400 with context length hint", http.StatusBadRequest, "this model's maximum context length is 128000 tokens", CodeTokenLimit},
		{"400 generic", http.StatusBadRequest, "invalid request", CodeGeneral},
		{"500 transport", http.StatusInternalServerError, "oops", CodeTransport},
		{"503 transport", http.StatusServiceUnavailable, "overloaded", CodeTransport},
		{"404 general", http.StatusNotFound, "no such model", CodeGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := codeFromStatus(tt.status, tt.message); got != tt.want {
				t.Errorf("codeFromStatus(%d, %q) = %v, want %v", tt.status, tt.message, got, tt.want)
			}
		})
	}
}

func TestClassify_StructuredError(t *testing.T) {
	// Status-derived codes win even when the message mentions something else.
	err := newAPIError("openai", http.StatusTooManyRequests, "your api key exceeded its quota")
	if got := Classify(err); got != CodeRateLimit {
		t.Errorf("Classify() = %v, want %v", got, CodeRateLimit)
	}

	wrapped := fmt.Errorf("calling provider: %w", err)
	if got := Classify(wrapped); got != CodeRateLimit {
		t.Errorf("Classify(wrapped) = %v, want %v", got, CodeRateLimit)
	}
}

func TestClassify_Substrings(t *testing.T) {
	tests := []struct {
		message string
		want    ErrorCode
	}{
		{"Rate limit exceeded, retry later", CodeRateLimit},
		{"invalid API key provided", CodeAuth},
		{"prompt exceeds token limit", CodeTokenLimit},
		{"request timeout after 60s", CodeTimeout},
		{"something unexpected", CodeGeneral},
	}
	for _, tt := range tests {
		if got := Classify(errors.New(tt.message)); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestClassify_ContextDeadline(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != CodeTimeout {
		t.Errorf("Classify(DeadlineExceeded) = %v, want %v", got, CodeTimeout)
	}
}

func TestNewTransportError_Timeout(t *testing.T) {
	err := newTransportError("anthropic", fmt.Errorf("post: %w", context.DeadlineExceeded))
	if err.Code != CodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code, CodeTimeout)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("transport error should unwrap to the cause")
	}
}
