// Package legalai implements the AI request orchestration core of a
// Canadian legal-information service: tiered multi-provider fallback with
// request queueing, two-level response caching, document-length management,
// and degraded-response synthesis.
//
// The Orchestrator type is the main entry point: create one with New,
// register vendor adapters in fallback order, and issue requests with
// Request or the feature helpers (GenerateChatResponse, LegalResearch,
// AnalyzeContract, EnhanceDocument).
package legalai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maplecourt/legalai/internal/cache"
	"github.com/maplecourt/legalai/internal/flags"
	"github.com/maplecourt/legalai/internal/logging"
	"github.com/maplecourt/legalai/internal/metrics"
	"github.com/maplecourt/legalai/internal/queue"
	"github.com/maplecourt/legalai/internal/requestlog"
	"github.com/maplecourt/legalai/providers"
)

// ErrNoProviders is returned when a request arrives before any provider has
// been registered.
var ErrNoProviders = errors.New("no providers registered")

// Orchestrator routes AI requests through cache lookup, queue admission,
// tiered provider fallback, and cache write-through. Every feature surface
// calls through it.
type Orchestrator struct {
	cfg        Config
	tiers      []providers.Provider
	persistent cache.Store // nil when the durable tier is disabled
	memory     *cache.Memory
	queue      *queue.Queue
	flags      *flags.Store
	logs       requestlog.Writer
}

// New creates an Orchestrator. persistent may be nil to run with only the
// in-memory tier; logs may be nil to disable persistent request logging.
func New(cfg Config, tiers []providers.Provider, persistent cache.Store, logs requestlog.Writer) *Orchestrator {
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	if cfg.Cache.DegradedTTL <= 0 {
		cfg.Cache.DegradedTTL = time.Minute
	}
	if logs == nil {
		logs = requestlog.NoopWriter{}
	}
	return &Orchestrator{
		cfg:        cfg,
		tiers:      tiers,
		persistent: persistent,
		memory:     cache.NewMemory(cfg.Cache.MemoryCapacity, cfg.Cache.MemoryTTL),
		queue:      queue.New(cfg.Queue.Concurrency),
		flags:      flags.NewStore(cfg.Flags),
		logs:       logs,
	}
}

// Options configures a single orchestrated request. Each option independently
// overrides the corresponding global feature flag for that one call.
type Options struct {
	// System overrides the default system prompt.
	System string
	// Model overrides each adapter's default model. Most callers leave this
	// empty so every tier uses its own default.
	Model       string
	Temperature *float64
	MaxTokens   *int

	// CacheKey overrides the derived cache key.
	CacheKey string
	// UseCache overrides the global cache flag for this call.
	UseCache *bool
	// SkipQueue runs the provider pipeline inline instead of under the
	// request queue.
	SkipQueue bool
	// SkipFallback rethrows the first provider failure instead of trying the
	// remaining tiers. Used by diagnostics tooling.
	SkipFallback bool
	// JSONResponse asks vendors for a JSON-object answer and switches
	// degraded responses to the structured error shape.
	JSONResponse bool
	// LogPrefix is prepended to attempt log lines.
	LogPrefix string
	// Feature labels metrics and request-log entries; empty means "generic".
	Feature string
}

func (o Options) feature() string {
	if o.Feature == "" {
		return "generic"
	}
	return o.Feature
}

// Result is the outcome of an orchestrated request.
type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Cached   bool   `json:"cached,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
	// ErrorType is set on degraded results: one of token_limit, rate_limit,
	// auth_error, general_error.
	ErrorType string `json:"errorType,omitempty"`
}

// degradedEnvelope is the structured shape returned when a JSON response was
// expected but every provider failed.
type degradedEnvelope struct {
	Error     bool   `json:"error"`
	ErrorType string `json:"errorType"`
	Fallback  bool   `json:"fallback"`
	Message   string `json:"message"`
}

// keyedOptions are the option fields that influence the response and
// therefore participate in cache key derivation.
type keyedOptions struct {
	System       string   `json:"system,omitempty"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
	JSONResponse bool     `json:"jsonResponse,omitempty"`
}

// Request runs the full pipeline for a prompt: cache check, queue admission,
// tiered provider fallback, cache write-through, and degraded-response
// synthesis on total failure. It returns an error only when fallback was
// explicitly disabled for the call (or the context was cancelled while
// waiting for queue admission).
func (o *Orchestrator) Request(ctx context.Context, prompt string, opts Options) (*Result, error) {
	if len(o.tiers) == 0 {
		return nil, ErrNoProviders
	}
	snap := o.flags.Snapshot()
	log := logging.FromContext(ctx)

	useCache := snap.UseCache
	if opts.UseCache != nil {
		useCache = *opts.UseCache
	}

	key := opts.CacheKey
	if key == "" {
		key = cache.Key(opts.Model, prompt, keyedOptions{
			System:       opts.System,
			Model:        opts.Model,
			Temperature:  opts.Temperature,
			MaxTokens:    opts.MaxTokens,
			JSONResponse: opts.JSONResponse,
		})
	}

	// CACHE_CHECK: a hit bypasses the queue and all providers.
	if useCache {
		if res, ok := o.cacheLookup(ctx, key); ok {
			metrics.RequestsTotal.WithLabelValues(opts.feature(), "cached").Inc()
			o.writeLog(ctx, opts, "", "cached", "", 0)
			if snap.DetailedLogging {
				log.Debug("cache hit", "feature", opts.feature(), "prompt_len", len(prompt))
			}
			return res, nil
		}
		metrics.CacheMisses.Inc()
	}

	// QUEUE_WAIT: the remaining pipeline runs as one task under the queue
	// unless queueing is off or the caller opted out.
	var res *Result
	var err error
	run := func() {
		res, err = o.tryProviders(ctx, prompt, opts, snap)
	}
	if snap.UseRequestQueue && !opts.SkipQueue {
		metrics.QueueWaiting.Inc()
		qErr := o.queue.Do(ctx, func() error {
			metrics.QueueWaiting.Dec()
			metrics.QueueRunning.Inc()
			defer metrics.QueueRunning.Dec()
			run()
			return nil
		})
		if qErr != nil {
			metrics.QueueWaiting.Dec()
			return nil, fmt.Errorf("queue admission: %w", qErr)
		}
	} else {
		run()
	}

	if err != nil {
		// Only reachable with fallback disabled; the caller asked to observe
		// the raw failure.
		metrics.RequestsTotal.WithLabelValues(opts.feature(), "error").Inc()
		return nil, err
	}

	if res.Degraded {
		metrics.RequestsTotal.WithLabelValues(opts.feature(), "degraded").Inc()
		// Short-TTL cache of the degraded response so a burst of identical
		// failing requests doesn't hammer providers. The error type is stored
		// with the entry so a later hit keeps its degraded identity.
		if useCache {
			if cErr := o.memory.SetDegraded(ctx, key, res.ErrorType, res.Text, o.cfg.Cache.DegradedTTL); cErr != nil {
				log.Warn("degraded response cache write failed", "error", cErr.Error())
			}
		}
		return res, nil
	}

	// SUCCESS: write through both tiers before returning.
	if useCache {
		o.cacheStore(ctx, key, opts.Model, prompt, res.Text)
	}
	metrics.RequestsTotal.WithLabelValues(opts.feature(), "success").Inc()
	return res, nil
}

// cacheLookup consults the persistent tier first, then the memory tier.
func (o *Orchestrator) cacheLookup(ctx context.Context, key string) (*Result, bool) {
	if o.persistent != nil {
		if text, ok := o.persistent.Get(ctx, key); ok {
			metrics.CacheHits.WithLabelValues("persistent").Inc()
			return &Result{Text: text, Cached: true}, true
		}
	}
	if text, errorType, ok := o.memory.GetEntry(ctx, key); ok {
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return &Result{
			Text:      text,
			Cached:    true,
			Degraded:  errorType != "",
			ErrorType: errorType,
		}, true
	}
	return nil, false
}

// cacheStore writes through to both tiers. Failures are logged, never fatal.
func (o *Orchestrator) cacheStore(ctx context.Context, key, model, prompt, response string) {
	log := logging.FromContext(ctx)
	if o.persistent != nil {
		if err := o.persistent.Set(ctx, key, model, prompt, response); err != nil {
			log.Warn("persistent cache write failed", "error", err.Error())
		}
	}
	if err := o.memory.Set(ctx, key, model, prompt, response); err != nil {
		log.Warn("memory cache write failed", "error", err.Error())
	}
}

// tryProviders walks the tiers in order. A failure moves to the next tier
// unless fallback is disabled globally or for this call. When every tier
// fails, a degraded result is synthesized; this path never returns an error.
func (o *Orchestrator) tryProviders(ctx context.Context, prompt string, opts Options, snap flags.Flags) (*Result, error) {
	log := logging.FromContext(ctx)
	fallback := snap.FallbackEnabled && !opts.SkipFallback

	req := providers.Request{
		Model:        opts.Model,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
		JSONResponse: opts.JSONResponse,
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, providers.Message{Role: providers.RoleSystem, Content: opts.System})
	}
	req.Messages = append(req.Messages, providers.Message{Role: providers.RoleUser, Content: prompt})

	var lastErr error
	for _, p := range o.tiers {
		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		resp, err := p.Complete(attemptCtx, req)
		cancel()
		elapsed := time.Since(start)

		if err != nil {
			code := providers.Classify(err)
			metrics.ProviderAttemptDuration.WithLabelValues(p.Name(), "error").Observe(elapsed.Seconds())
			metrics.ProviderErrors.WithLabelValues(p.Name(), string(code)).Inc()
			log.Warn(opts.LogPrefix+"provider attempt failed",
				"provider", p.Name(),
				"feature", opts.feature(),
				"duration_ms", elapsed.Milliseconds(),
				"prompt_len", len(prompt),
				"code", string(code),
				"error", err.Error(),
			)
			o.writeLog(ctx, opts, p.Name(), "error", string(code), elapsed.Milliseconds())

			lastErr = err
			if !fallback {
				return nil, err
			}
			continue
		}

		metrics.ProviderAttemptDuration.WithLabelValues(p.Name(), "success").Observe(elapsed.Seconds())
		metrics.TokensInput.WithLabelValues(p.Name(), resp.Model).Add(float64(resp.Usage.PromptTokens))
		metrics.TokensOutput.WithLabelValues(p.Name(), resp.Model).Add(float64(resp.Usage.CompletionTokens))
		if snap.DetailedLogging {
			log.Info(opts.LogPrefix+"provider attempt succeeded",
				"provider", p.Name(),
				"feature", opts.feature(),
				"model", resp.Model,
				"duration_ms", elapsed.Milliseconds(),
				"prompt_len", len(prompt),
				"tokens_in", resp.Usage.PromptTokens,
				"tokens_out", resp.Usage.CompletionTokens,
			)
		}
		o.writeLog(ctx, opts, p.Name(), "success", "", elapsed.Milliseconds())

		return &Result{
			Text:     resp.Content,
			Provider: p.Name(),
			Model:    resp.Model,
		}, nil
	}

	// DEGRADED_FALLBACK: every tier failed.
	return o.degraded(ctx, opts, lastErr), nil
}

// degraded synthesizes a user-facing result from the last provider error.
func (o *Orchestrator) degraded(ctx context.Context, opts Options, lastErr error) *Result {
	code := providers.Classify(lastErr)
	errorType := degradedErrorType(code)
	message := degradedMessage(errorType)

	metrics.DegradedResponses.WithLabelValues(errorType).Inc()
	o.writeLog(ctx, opts, "", "degraded", errorType, 0)
	logging.FromContext(ctx).Error(opts.LogPrefix+"all providers failed",
		"feature", opts.feature(),
		"error_type", errorType,
		"last_error", errString(lastErr),
	)

	text := message
	if opts.JSONResponse {
		// Callers expecting JSON get the structured error shape so they can
		// distinguish degraded answers from real ones.
		b, err := json.Marshal(degradedEnvelope{
			Error:     true,
			ErrorType: errorType,
			Fallback:  true,
			Message:   message,
		})
		if err == nil {
			text = string(b)
		}
	}

	return &Result{Text: text, Degraded: true, ErrorType: errorType}
}

// degradedErrorType collapses provider error codes into the four user-facing
// classes.
func degradedErrorType(code providers.ErrorCode) string {
	switch code {
	case providers.CodeTokenLimit:
		return "token_limit"
	case providers.CodeRateLimit:
		return "rate_limit"
	case providers.CodeAuth:
		return "auth_error"
	default:
		return "general_error"
	}
}

func degradedMessage(errorType string) string {
	switch errorType {
	case "token_limit":
		return "We're sorry — your request was too long for our AI services to process. " +
			"Please shorten your question or document and try again."
	case "rate_limit":
		return "We're sorry — our AI services are experiencing high demand right now. " +
			"Please wait a moment and try again."
	case "auth_error":
		return "We're sorry — we're having trouble reaching our AI services. " +
			"The issue is on our side; please try again later."
	default:
		return "We're sorry — we couldn't process your request right now. " +
			"Please try again in a few minutes."
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// writeLog appends a request-log entry, best-effort.
func (o *Orchestrator) writeLog(ctx context.Context, opts Options, provider, outcome, errorCode string, durationMs int64) {
	entry := requestlog.Entry{
		RequestID:  logging.RequestIDFromContext(ctx),
		Feature:    opts.feature(),
		Provider:   provider,
		Model:      opts.Model,
		Outcome:    outcome,
		ErrorCode:  errorCode,
		DurationMs: durationMs,
	}
	if err := o.logs.Write(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("request log write failed", "error", err.Error())
	}
}

// Flags returns a snapshot of the current feature flags.
func (o *Orchestrator) Flags() flags.Flags {
	return o.flags.Snapshot()
}

// UpdateFlags applies a partial flag update and returns the resulting flags.
// This is the only mutator of the flag set.
func (o *Orchestrator) UpdateFlags(p flags.Patch) flags.Flags {
	updated := o.flags.Apply(p)
	logging.Logger.Info("feature flags updated",
		"use_cache", updated.UseCache,
		"use_request_queue", updated.UseRequestQueue,
		"fallback_enabled", updated.FallbackEnabled,
		"detailed_logging", updated.DetailedLogging,
	)
	return updated
}

// CacheStats reports both tiers' counters for the admin status endpoint.
func (o *Orchestrator) CacheStats(ctx context.Context) map[string]cache.Stats {
	stats := make(map[string]cache.Stats, 2)
	if o.persistent != nil {
		if s, err := o.persistent.Stats(ctx); err == nil {
			stats["persistent"] = s
		}
	}
	if s, err := o.memory.Stats(ctx); err == nil {
		stats["memory"] = s
	}
	return stats
}

// ClearCaches flushes both cache tiers.
func (o *Orchestrator) ClearCaches(ctx context.Context) error {
	if err := o.memory.Clear(ctx); err != nil {
		return err
	}
	if o.persistent != nil {
		if err := o.persistent.Clear(ctx); err != nil {
			return err
		}
	}
	logging.FromContext(ctx).Info("caches cleared")
	return nil
}

// QueueStats reports request-queue occupancy.
func (o *Orchestrator) QueueStats() (running, waiting, limit int) {
	return o.queue.Running(), o.queue.Waiting(), o.queue.Limit()
}

// Providers returns the names of the registered tiers in fallback order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.tiers))
	for i, p := range o.tiers {
		names[i] = p.Name()
	}
	return names
}
