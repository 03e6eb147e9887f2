package legalai

import (
	"fmt"
	"time"

	"github.com/maplecourt/legalai/internal/flags"
)

// Config holds the configuration for the orchestration core.
type Config struct {
	// Providers lists the vendor tiers in fallback order. The first entry is
	// the primary tier.
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
	// Queue configures admission control for outbound provider calls.
	Queue QueueConfig `json:"queue" yaml:"queue"`
	// Cache configures the two response-cache tiers.
	Cache CacheConfig `json:"cache" yaml:"cache"`
	// RequestLog configures persistent per-attempt logging.
	RequestLog RequestLogConfig `json:"request_log" yaml:"request_log"`
	// Flags is the initial feature-flag set; mutable at runtime through the
	// admin API.
	Flags flags.Flags `json:"flags" yaml:"flags"`
	// AttemptTimeout bounds each individual provider attempt so one stuck
	// vendor call cannot hold a queue slot indefinitely.
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout"`
	// ContractTokenBudget is the token budget contract documents are fitted
	// to before analysis.
	ContractTokenBudget int `json:"contract_token_budget" yaml:"contract_token_budget"`
}

// ProviderConfig identifies one vendor tier.
type ProviderConfig struct {
	// Name is one of "openai", "anthropic", "deepseek".
	Name    string `json:"name" yaml:"name"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// QueueConfig configures the request queue.
type QueueConfig struct {
	// Concurrency is the admission limit (default 3).
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// CacheConfig configures both cache tiers.
type CacheConfig struct {
	// Backend selects the persistent store: "sqlite" (default), "postgres",
	// or "none" to run with only the in-memory tier.
	Backend string `json:"backend" yaml:"backend"`
	// DSN is the persistent store location: a file path for SQLite, a
	// connection string for Postgres.
	DSN string `json:"dsn" yaml:"dsn"`
	// PersistentTTL is the durable-tier entry lifetime (default 24h).
	PersistentTTL time.Duration `json:"persistent_ttl" yaml:"persistent_ttl"`
	// MemoryTTL is the in-process tier entry lifetime (default 1h).
	MemoryTTL time.Duration `json:"memory_ttl" yaml:"memory_ttl"`
	// MemoryCapacity caps the in-process tier entry count (default 1000).
	MemoryCapacity int `json:"memory_capacity" yaml:"memory_capacity"`
	// DegradedTTL is the short lifetime for cached degraded responses
	// (default 1m), protecting providers from identical failing requests.
	DegradedTTL time.Duration `json:"degraded_ttl" yaml:"degraded_ttl"`
	// SweepInterval is how often expired persistent entries are reaped
	// (default 1h).
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// RequestLogConfig configures persistent request logging.
type RequestLogConfig struct {
	// Backend is "sqlite", "postgres", or "" to disable.
	Backend string `json:"backend" yaml:"backend"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

// Defaults returns a Config with shipping defaults and no providers.
func Defaults() Config {
	return Config{
		Queue: QueueConfig{Concurrency: 3},
		Cache: CacheConfig{
			Backend:        "sqlite",
			PersistentTTL:  24 * time.Hour,
			MemoryTTL:      time.Hour,
			MemoryCapacity: 1000,
			DegradedTTL:    time.Minute,
			SweepInterval:  time.Hour,
		},
		Flags:               flags.Defaults(),
		AttemptTimeout:      60 * time.Second,
		ContractTokenBudget: 6000,
	}
}

// knownProviders are the adapter names ValidateConfig accepts.
var knownProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"deepseek":  true,
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	seen := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if !knownProviders[p.Name] {
			return fmt.Errorf("unknown provider: %q", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %q listed twice", p.Name)
		}
		seen[p.Name] = true
		if p.APIKey == "" {
			return fmt.Errorf("provider %q has no api_key", p.Name)
		}
	}
	if cfg.Queue.Concurrency < 0 {
		return fmt.Errorf("queue concurrency must not be negative")
	}
	switch cfg.Cache.Backend {
	case "", "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown cache backend: %q", cfg.Cache.Backend)
	}
	switch cfg.RequestLog.Backend {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown request_log backend: %q", cfg.RequestLog.Backend)
	}
	return nil
}
