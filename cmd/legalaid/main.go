// Command legalaid is the HTTP server for the legal-AI orchestration core.
// Providers are registered from the config file or from environment
// variables; the fallback order is OpenAI, then Anthropic, then DeepSeek.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	legalai "github.com/maplecourt/legalai"
	"github.com/maplecourt/legalai/internal/cache"
	"github.com/maplecourt/legalai/internal/logging"
	"github.com/maplecourt/legalai/internal/requestlog"
	"github.com/maplecourt/legalai/internal/version"
	"github.com/maplecourt/legalai/providers"
)

func main() {
	cfg := loadConfig()

	tiers := buildProviders(cfg)
	if len(tiers) == 0 {
		log.Fatal("No providers configured. Set at least one provider API key (OPENAI_API_KEY, ANTHROPIC_API_KEY, DEEPSEEK_API_KEY) or list providers in the config file")
	}

	persistent := buildPersistentCache(cfg)
	logStore := buildRequestLog(cfg)

	orch := legalai.New(*cfg, tiers, storeOrNil(persistent), writerOrNil(logStore))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if persistent != nil {
		persistent.StartSweep(ctx, cfg.Cache.SweepInterval)
	}

	r := newRouter(orch, readerOrNil(logStore), os.Getenv("ADMIN_TOKEN"))

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Logger.Info("server listening", "addr", addr, "version", version.Short(), "providers", orch.Providers())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logging.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Error("shutdown failed", "error", err.Error())
	}
	if persistent != nil {
		_ = persistent.Close()
	}
	if logStore != nil {
		_ = logStore.Close()
	}
}

func loadConfig() *legalai.Config {
	if path := os.Getenv("LEGALAI_CONFIG"); path != "" {
		cfg, err := legalai.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if err := legalai.ValidateConfig(*cfg); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
		log.Printf("Config loaded: providers=%d, queue concurrency=%d", len(cfg.Providers), cfg.Queue.Concurrency)
		return cfg
	}

	// No config file: build from environment variables in the default
	// fallback order.
	cfg := legalai.Defaults()
	for _, pe := range []struct{ envKey, name string }{
		{"OPENAI_API_KEY", "openai"},
		{"ANTHROPIC_API_KEY", "anthropic"},
		{"DEEPSEEK_API_KEY", "deepseek"},
	} {
		if key := os.Getenv(pe.envKey); key != "" {
			cfg.Providers = append(cfg.Providers, legalai.ProviderConfig{Name: pe.name, APIKey: key})
		}
	}
	return &cfg
}

func buildProviders(cfg *legalai.Config) []providers.Provider {
	var tiers []providers.Provider
	for _, pc := range cfg.Providers {
		var (
			p   providers.Provider
			err error
		)
		switch pc.Name {
		case "openai":
			p, err = providers.NewOpenAI(pc.APIKey, pc.BaseURL)
		case "anthropic":
			p, err = providers.NewAnthropic(pc.APIKey, pc.BaseURL)
		case "deepseek":
			p, err = providers.NewDeepSeek(pc.APIKey, pc.BaseURL)
		default:
			log.Fatalf("unknown provider: %s", pc.Name)
		}
		if err != nil {
			log.Fatalf("%s provider: %v", pc.Name, err)
		}
		tiers = append(tiers, p)
		log.Printf("Provider registered: %s", pc.Name)
	}
	return tiers
}

func buildPersistentCache(cfg *legalai.Config) *cache.SQLStore {
	switch cfg.Cache.Backend {
	case "none":
		return nil
	case "postgres":
		store, err := cache.NewPostgresStore(cfg.Cache.DSN, cfg.Cache.PersistentTTL)
		if err != nil {
			log.Fatalf("postgres cache: %v", err)
		}
		return store
	case "", "sqlite":
		store, err := cache.NewSQLiteStore(cfg.Cache.DSN, cfg.Cache.PersistentTTL)
		if err != nil {
			log.Fatalf("sqlite cache: %v", err)
		}
		return store
	default:
		log.Fatalf("unknown cache backend: %s", cfg.Cache.Backend)
		return nil
	}
}

func buildRequestLog(cfg *legalai.Config) *requestlog.SQLStore {
	switch cfg.RequestLog.Backend {
	case "postgres":
		s, err := requestlog.NewPostgresStore(cfg.RequestLog.DSN)
		if err != nil {
			log.Fatalf("postgres request log: %v", err)
		}
		return s
	case "sqlite":
		s, err := requestlog.NewSQLiteStore(cfg.RequestLog.DSN)
		if err != nil {
			log.Fatalf("sqlite request log: %v", err)
		}
		return s
	default:
		return nil
	}
}

// storeOrNil and writerOrNil avoid handing typed-nil pointers to the
// orchestrator's interface fields.
func storeOrNil(s *cache.SQLStore) cache.Store {
	if s == nil {
		return nil
	}
	return s
}

func writerOrNil(s *requestlog.SQLStore) requestlog.Writer {
	if s == nil {
		return nil
	}
	return s
}

func readerOrNil(s *requestlog.SQLStore) requestlog.Reader {
	if s == nil {
		return nil
	}
	return s
}
