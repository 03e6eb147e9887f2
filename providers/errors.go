package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a machine-readable failure category attached to every adapter
// error. The orchestrator uses it to pick a degraded-response message; it is
// derived from the vendor HTTP status where possible, with message-substring
// sniffing only as a last resort for unstructured errors.
type ErrorCode string

// Error codes shared by all adapters.
const (
	CodeRateLimit   ErrorCode = "rate_limit"
	CodeAuth        ErrorCode = "auth_error"
	CodeTokenLimit  ErrorCode = "token_limit"
	CodeTimeout     ErrorCode = "timeout"
	CodeTransport   ErrorCode = "transport"
	CodeBadResponse ErrorCode = "bad_response"
	CodeGeneral     ErrorCode = "general_error"
)

// Error is the structured error returned by every adapter for vendor-side
// failures. It wraps the underlying transport error when one exists.
type Error struct {
	Provider string
	Code     ErrorCode
	Status   int // HTTP status, 0 when the request never got a response
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s API error (%d, %s): %s", e.Provider, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// newAPIError builds an *Error from a non-2xx vendor response.
func newAPIError(provider string, status int, message string) *Error {
	return &Error{
		Provider: provider,
		Code:     codeFromStatus(status, message),
		Status:   status,
		Message:  message,
	}
}

// newTransportError builds an *Error for a request that never produced a
// vendor response (DNS, TLS, connection reset, context deadline).
func newTransportError(provider string, err error) *Error {
	code := CodeTransport
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = CodeTimeout
	}
	return &Error{Provider: provider, Code: code, Message: err.Error(), Err: err}
}

// codeFromStatus maps a vendor HTTP status to an ErrorCode. Status 400 is
// ambiguous across vendors, so the message is consulted for token-limit hints.
func codeFromStatus(status int, message string) ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return CodeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuth
	case status == http.StatusRequestEntityTooLarge:
		return CodeTokenLimit
	case status == http.StatusBadRequest && mentionsTokenLimit(message):
		return CodeTokenLimit
	case status >= 500:
		return CodeTransport
	default:
		return CodeGeneral
	}
}

func mentionsTokenLimit(message string) bool {
	m := strings.ToLower(message)
	for _, hint := range []string{"context length", "context_length", "maximum context", "token limit", "too many tokens", "max_tokens"} {
		if strings.Contains(m, hint) {
			return true
		}
	}
	return false
}

// Classify returns the ErrorCode for an arbitrary error. Structured adapter
// errors carry their own code; anything else falls back to substring sniffing
// of the message, which is best-effort only.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	m := strings.ToLower(err.Error())
	switch {
	case strings.Contains(m, "rate limit") || strings.Contains(m, "rate_limit") || strings.Contains(m, "quota") || strings.Contains(m, "429"):
		return CodeRateLimit
	case strings.Contains(m, "api key") || strings.Contains(m, "unauthorized") || strings.Contains(m, "authentication") || strings.Contains(m, "401"):
		return CodeAuth
	case mentionsTokenLimit(m):
		return CodeTokenLimit
	case strings.Contains(m, "timeout") || strings.Contains(m, "deadline"):
		return CodeTimeout
	default:
		return CodeGeneral
	}
}
