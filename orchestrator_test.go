package legalai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maplecourt/legalai/internal/flags"
	"github.com/maplecourt/legalai/providers"
)

// mockProvider is a test double for providers.Provider.
type mockProvider struct {
	name  string
	resp  *providers.Response
	err   error
	calls atomic.Int64

	// complete, when set, overrides resp/err.
	complete func(ctx context.Context, req providers.Request) (*providers.Response, error)
}

func (m *mockProvider) Name() string         { return m.name }
func (m *mockProvider) DefaultModel() string { return "mock-model" }
func (m *mockProvider) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	m.calls.Add(1)
	if m.complete != nil {
		return m.complete(ctx, req)
	}
	return m.resp, m.err
}

func okProvider(name, content string) *mockProvider {
	return &mockProvider{
		name: name,
		resp: &providers.Response{Model: "mock-model", Provider: name, Content: content},
	}
}

func failProvider(name string, err error) *mockProvider {
	return &mockProvider{name: name, err: err}
}

func newTestOrchestrator(tiers ...providers.Provider) *Orchestrator {
	cfg := Defaults()
	cfg.Flags = flags.Defaults()
	return New(cfg, tiers, nil, nil)
}

func TestOrchestrator_NoProviders(t *testing.T) {
	o := newTestOrchestrator()
	if _, err := o.Request(context.Background(), "hi", Options{}); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("Request() = %v, want ErrNoProviders", err)
	}
}

func TestOrchestrator_PrimarySucceeds(t *testing.T) {
	primary := okProvider("openai", "answer from primary")
	secondary := okProvider("anthropic", "should not be reached")
	o := newTestOrchestrator(primary, secondary)

	res, err := o.Request(context.Background(), "what is a lien", Options{})
	if err != nil {
		t.Fatalf("Request() returned error: %v", err)
	}
	if res.Text != "answer from primary" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Provider != "openai" {
		t.Errorf("Provider = %q", res.Provider)
	}
	if res.Degraded || res.Cached {
		t.Errorf("unexpected result state: %+v", res)
	}
	if secondary.calls.Load() != 0 {
		t.Error("secondary tier was invoked despite primary success")
	}
}

func TestOrchestrator_FallbackOrder(t *testing.T) {
	primary := failProvider("openai", errors.New("boom"))
	secondary := okProvider("anthropic", "answer from secondary")
	tertiary := okProvider("deepseek", "should not be reached")
	o := newTestOrchestrator(primary, secondary, tertiary)

	res, err := o.Request(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Request() returned error: %v", err)
	}
	if res.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", res.Provider)
	}
	if primary.calls.Load() != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls.Load())
	}
	if tertiary.calls.Load() != 0 {
		t.Error("tertiary tier was invoked after secondary success")
	}
}

func TestOrchestrator_ExhaustionNeverErrors(t *testing.T) {
	o := newTestOrchestrator(
		failProvider("openai", errors.New("down")),
		failProvider("anthropic", errors.New("down")),
		failProvider("deepseek", errors.New("down")),
	)

	res, err := o.Request(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("exhaustion must not return an error, got %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected a degraded result")
	}
	if res.ErrorType != "general_error" {
		t.Errorf("ErrorType = %q, want general_error", res.ErrorType)
	}
	if res.Text == "" {
		t.Error("degraded result must carry a user-facing message")
	}
}

func TestOrchestrator_DegradedErrorTypes(t *testing.T) {
	tests := []struct {
		name    string
		lastErr error
		want    string
	}{
		{"rate limit", &providers.Error{Provider: "p", Code: providers.CodeRateLimit, Status: http.StatusTooManyRequests, Message: "slow down"}, "rate_limit"},
		{"token limit", &providers.Error{Provider: "p", Code: providers.CodeTokenLimit, Message: "too long"}, "token_limit"},
		{"auth", &providers.Error{Provider: "p", Code: providers.CodeAuth, Message: "bad key"}, "auth_error"},
		{"timeout collapses to general", &providers.Error{Provider: "p", Code: providers.CodeTimeout, Message: "deadline"}, "general_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(failProvider("only", tt.lastErr))
			res, err := o.Request(context.Background(), "q", Options{})
			if err != nil {
				t.Fatalf("Request() returned error: %v", err)
			}
			if res.ErrorType != tt.want {
				t.Errorf("ErrorType = %q, want %q", res.ErrorType, tt.want)
			}
		})
	}
}

func TestOrchestrator_DegradedJSONEnvelope(t *testing.T) {
	o := newTestOrchestrator(failProvider("only", errors.New("down")))

	res, err := o.Request(context.Background(), "q", Options{JSONResponse: true})
	if err != nil {
		t.Fatalf("Request() returned error: %v", err)
	}
	var env struct {
		Error     bool   `json:"error"`
		ErrorType string `json:"errorType"`
		Fallback  bool   `json:"fallback"`
		Message   string `json:"message"`
	}
	if jErr := json.Unmarshal([]byte(res.Text), &env); jErr != nil {
		t.Fatalf("degraded JSON response is not valid JSON: %v", jErr)
	}
	if !env.Error || !env.Fallback {
		t.Errorf("envelope = %+v, want error and fallback true", env)
	}
	if env.ErrorType != "general_error" {
		t.Errorf("errorType = %q", env.ErrorType)
	}
}

func TestOrchestrator_SkipFallbackRethrows(t *testing.T) {
	wantErr := &providers.Error{Provider: "openai", Code: providers.CodeRateLimit, Status: 429, Message: "limited"}
	primary := failProvider("openai", wantErr)
	secondary := okProvider("anthropic", "unused")
	o := newTestOrchestrator(primary, secondary)

	_, err := o.Request(context.Background(), "q", Options{SkipFallback: true})
	if err == nil {
		t.Fatal("expected the raw provider error")
	}
	var perr *providers.Error
	if !errors.As(err, &perr) || perr.Code != providers.CodeRateLimit {
		t.Errorf("err = %v, want the original rate-limit error", err)
	}
	if secondary.calls.Load() != 0 {
		t.Error("secondary tier must not run with fallback disabled")
	}
}

func TestOrchestrator_FallbackDisabledGlobally(t *testing.T) {
	primary := failProvider("openai", errors.New("down"))
	secondary := okProvider("anthropic", "unused")
	o := newTestOrchestrator(primary, secondary)
	off := false
	o.UpdateFlags(flags.Patch{FallbackEnabled: &off})

	if _, err := o.Request(context.Background(), "q", Options{}); err == nil {
		t.Fatal("expected the raw provider error with global fallback off")
	}
	if secondary.calls.Load() != 0 {
		t.Error("secondary tier ran despite disabled fallback")
	}
}

func TestOrchestrator_CacheShortCircuit(t *testing.T) {
	primary := okProvider("openai", "computed once")
	o := newTestOrchestrator(primary)

	first, err := o.Request(context.Background(), "repeat me", Options{})
	if err != nil {
		t.Fatalf("Request() returned error: %v", err)
	}
	if first.Cached {
		t.Fatal("first request must not be a cache hit")
	}

	second, err := o.Request(context.Background(), "repeat me", Options{})
	if err != nil {
		t.Fatalf("Request() returned error: %v", err)
	}
	if !second.Cached {
		t.Fatal("second identical request must hit the cache")
	}
	if second.Text != "computed once" {
		t.Errorf("Text = %q", second.Text)
	}
	if primary.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", primary.calls.Load())
	}
}

func TestOrchestrator_CacheKeyedByOptions(t *testing.T) {
	primary := okProvider("openai", "answer")
	o := newTestOrchestrator(primary)

	_, _ = o.Request(context.Background(), "q", Options{})
	temp := 0.9
	_, _ = o.Request(context.Background(), "q", Options{Temperature: &temp})

	if primary.calls.Load() != 2 {
		t.Errorf("provider calls = %d, want 2 for distinct options", primary.calls.Load())
	}
}

func TestOrchestrator_UseCacheOverride(t *testing.T) {
	primary := okProvider("openai", "fresh")
	o := newTestOrchestrator(primary)
	noCache := false

	_, _ = o.Request(context.Background(), "q", Options{UseCache: &noCache})
	_, _ = o.Request(context.Background(), "q", Options{UseCache: &noCache})

	if primary.calls.Load() != 2 {
		t.Errorf("provider calls = %d, want 2 with caching off", primary.calls.Load())
	}
}

func TestOrchestrator_DegradedResponseCachedShortTTL(t *testing.T) {
	cfg := Defaults()
	cfg.Flags = flags.Defaults()
	cfg.Cache.DegradedTTL = 20 * time.Millisecond
	flaky := &mockProvider{name: "openai"}
	flaky.complete = func(context.Context, providers.Request) (*providers.Response, error) {
		return nil, errors.New("down")
	}
	o := New(cfg, []providers.Provider{flaky}, nil, nil)

	first, _ := o.Request(context.Background(), "q", Options{})
	if !first.Degraded {
		t.Fatal("expected degraded result")
	}

	// Within the short TTL an identical request is served from cache and
	// keeps its degraded identity.
	second, _ := o.Request(context.Background(), "q", Options{})
	if !second.Cached {
		t.Error("expected degraded response to be served from cache inside TTL")
	}
	if !second.Degraded {
		t.Error("cached degraded response lost its Degraded flag")
	}
	if second.ErrorType != first.ErrorType {
		t.Errorf("cached ErrorType = %q, want %q", second.ErrorType, first.ErrorType)
	}
	if flaky.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", flaky.calls.Load())
	}

	// After the TTL the provider is consulted again.
	time.Sleep(30 * time.Millisecond)
	flaky.complete = func(context.Context, providers.Request) (*providers.Response, error) {
		return &providers.Response{Model: "mock-model", Content: "recovered"}, nil
	}
	third, _ := o.Request(context.Background(), "q", Options{})
	if third.Cached || third.Degraded {
		t.Errorf("expected a fresh provider answer after TTL, got %+v", third)
	}
	if third.Text != "recovered" {
		t.Errorf("Text = %q", third.Text)
	}
}

func TestOrchestrator_AttemptTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Flags = flags.Defaults()
	cfg.AttemptTimeout = 10 * time.Millisecond

	slow := &mockProvider{name: "slow"}
	slow.complete = func(ctx context.Context, _ providers.Request) (*providers.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	fast := okProvider("fast", "rescued")
	o := New(cfg, []providers.Provider{slow, fast}, nil, nil)

	res, err := o.Request(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Request() returned error: %v", err)
	}
	if res.Provider != "fast" {
		t.Errorf("Provider = %q, want fast after primary timeout", res.Provider)
	}
}

func TestOrchestrator_QueueCancellation(t *testing.T) {
	cfg := Defaults()
	cfg.Flags = flags.Defaults()
	cfg.Queue.Concurrency = 1

	holding := make(chan struct{})
	releaseHold := make(chan struct{})
	blocker := &mockProvider{name: "blocker"}
	blocker.complete = func(context.Context, providers.Request) (*providers.Response, error) {
		close(holding)
		<-releaseHold
		return &providers.Response{Model: "mock-model", Content: "ok"}, nil
	}
	o := New(cfg, []providers.Provider{blocker}, nil, nil)

	go func() {
		_, _ = o.Request(context.Background(), "hold the slot", Options{})
	}()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := o.Request(ctx, "waits in queue", Options{})
		errCh <- err
	}()
	for {
		if _, waiting, _ := o.QueueStats(); waiting > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("queued request error = %v, want context.Canceled", err)
	}
	close(releaseHold)
}

func TestOrchestrator_SystemPromptForwarded(t *testing.T) {
	var gotReq providers.Request
	p := &mockProvider{name: "capture"}
	p.complete = func(_ context.Context, req providers.Request) (*providers.Response, error) {
		gotReq = req
		return &providers.Response{Model: "mock-model", Content: "ok"}, nil
	}
	o := newTestOrchestrator(p)

	temp := 0.1
	maxTok := 256
	_, err := o.Request(context.Background(), "the question", Options{
		System:      "answer tersely",
		Temperature: &temp,
		MaxTokens:   &maxTok,
	})
	if err != nil {
		t.Fatalf("Request() returned error: %v", err)
	}

	if len(gotReq.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want system + user", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != providers.RoleSystem || gotReq.Messages[0].Content != "answer tersely" {
		t.Errorf("system message = %+v", gotReq.Messages[0])
	}
	if gotReq.Messages[1].Role != providers.RoleUser || gotReq.Messages[1].Content != "the question" {
		t.Errorf("user message = %+v", gotReq.Messages[1])
	}
	if gotReq.Temperature == nil || *gotReq.Temperature != 0.1 {
		t.Error("temperature not forwarded")
	}
	if gotReq.MaxTokens == nil || *gotReq.MaxTokens != 256 {
		t.Error("max tokens not forwarded")
	}
}

func TestOrchestrator_AdminSurface(t *testing.T) {
	o := newTestOrchestrator(okProvider("openai", "x"), okProvider("anthropic", "y"))

	names := o.Providers()
	if len(names) != 2 || names[0] != "openai" || names[1] != "anthropic" {
		t.Errorf("Providers() = %v", names)
	}

	off := false
	updated := o.UpdateFlags(flags.Patch{UseCache: &off})
	if updated.UseCache {
		t.Error("UpdateFlags did not apply")
	}
	if o.Flags().UseCache {
		t.Error("Flags() does not reflect the update")
	}

	_, _ = o.Request(context.Background(), "q", Options{})
	stats := o.CacheStats(context.Background())
	if _, ok := stats["memory"]; !ok {
		t.Error("CacheStats missing memory tier")
	}
	if err := o.ClearCaches(context.Background()); err != nil {
		t.Errorf("ClearCaches() returned error: %v", err)
	}

	running, waiting, limit := o.QueueStats()
	if running != 0 || waiting != 0 {
		t.Errorf("idle queue stats = %d running, %d waiting", running, waiting)
	}
	if limit != 3 {
		t.Errorf("queue limit = %d, want default 3", limit)
	}
}
