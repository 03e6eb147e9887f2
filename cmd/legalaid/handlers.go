package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	legalai "github.com/maplecourt/legalai"
	"github.com/maplecourt/legalai/internal/extract"
	"github.com/maplecourt/legalai/internal/flags"
	"github.com/maplecourt/legalai/internal/logging"
	"github.com/maplecourt/legalai/internal/requestlog"
)

// requestOptions is the per-call options object accepted by every API
// endpoint. Each field independently overrides a global flag for the call.
type requestOptions struct {
	System       string   `json:"system,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
	CacheKey     string   `json:"cacheKey,omitempty"`
	UseCache     *bool    `json:"useCache,omitempty"`
	SkipQueue    bool     `json:"skipQueue,omitempty"`
	Model        string   `json:"model,omitempty"`
	SkipFallback bool     `json:"skipFallback,omitempty"`
}

func (ro requestOptions) toOptions() legalai.Options {
	return legalai.Options{
		System:       ro.System,
		Temperature:  ro.Temperature,
		MaxTokens:    ro.MaxTokens,
		CacheKey:     ro.CacheKey,
		UseCache:     ro.UseCache,
		SkipQueue:    ro.SkipQueue,
		Model:        ro.Model,
		SkipFallback: ro.SkipFallback,
	}
}

type server struct {
	orch      *legalai.Orchestrator
	logs      requestlog.Reader
	extractor extract.Extractor
}

func newRouter(orch *legalai.Orchestrator, logs requestlog.Reader, adminToken string) chi.Router {
	s := &server{orch: orch, logs: logs, extractor: extract.PlainText{}}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.chat)
		r.Post("/research", s.research)
		r.Post("/contract/analyze", s.analyzeContract)
		r.Post("/document/enhance", s.enhanceDocument)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin(adminToken))
		r.Get("/status", s.status)
		r.Post("/feature-flags", s.updateFlags)
		r.Post("/clear-cache", s.clearCache)
		r.Get("/logs", s.listLogs)
	})

	return r
}

// requireAdmin checks the bearer token on admin routes. An empty configured
// token leaves the surface open; deployments are expected to set ADMIN_TOKEN.
func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				if got != token {
					writeError(w, http.StatusUnauthorized, "invalid admin token")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ------------------------------------------------------------- features ----

func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string         `json:"message"`
		Options requestOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := s.orch.GenerateChatResponse(r.Context(), body.Message, body.Options.toOptions())
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response":  res.Text,
		"provider":  res.Provider,
		"cached":    res.Cached,
		"degraded":  res.Degraded,
		"errorType": res.ErrorType,
	})
}

func (s *server) research(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query        string         `json:"query"`
		Jurisdiction string         `json:"jurisdiction"`
		PracticeArea string         `json:"practiceArea"`
		Options      requestOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	res, err := s.orch.LegalResearch(r.Context(), body.Query, body.Jurisdiction, body.PracticeArea, body.Options.toOptions())
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) analyzeContract(w http.ResponseWriter, r *http.Request) {
	text, jurisdiction, contractType, opts, ok := s.contractInput(w, r)
	if !ok {
		return
	}
	res, err := s.orch.AnalyzeContract(r.Context(), text, jurisdiction, contractType, opts)
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// contractInput accepts either a JSON body {text, jurisdiction, contractType}
// or a raw document body (any non-JSON content type) run through the
// document-to-text extractor, with jurisdiction and contract type passed as
// query parameters.
func (s *server) contractInput(w http.ResponseWriter, r *http.Request) (text, jurisdiction, contractType string, opts legalai.Options, ok bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			Text         string         `json:"text"`
			Jurisdiction string         `json:"jurisdiction"`
			ContractType string         `json:"contractType"`
			Options      requestOptions `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		text, jurisdiction, contractType, opts = body.Text, body.Jurisdiction, body.ContractType, body.Options.toOptions()
	} else {
		extracted, err := s.extractor.Text(r.Context(), r.Body, contentType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "document extraction failed: "+err.Error())
			return
		}
		text = extracted
		jurisdiction = r.URL.Query().Get("jurisdiction")
		contractType = r.URL.Query().Get("contractType")
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "contract text is required")
		return
	}
	ok = true
	return
}

func (s *server) enhanceDocument(w http.ResponseWriter, r *http.Request) {
	var text, instructions string
	var opts legalai.Options

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			Text         string         `json:"text"`
			Instructions string         `json:"instructions"`
			Options      requestOptions `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		text, instructions, opts = body.Text, body.Instructions, body.Options.toOptions()
	} else {
		extracted, err := s.extractor.Text(r.Context(), r.Body, contentType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "document extraction failed: "+err.Error())
			return
		}
		text = extracted
		instructions = r.URL.Query().Get("instructions")
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "document text is required")
		return
	}

	res, err := s.orch.EnhanceDocument(r.Context(), text, instructions, opts)
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":      res.Text,
		"provider":  res.Provider,
		"cached":    res.Cached,
		"degraded":  res.Degraded,
		"errorType": res.ErrorType,
	})
}

// ---------------------------------------------------------------- admin ----

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	running, waiting, limit := s.orch.QueueStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"flags":     s.orch.Flags(),
		"providers": s.orch.Providers(),
		"cache":     s.orch.CacheStats(r.Context()),
		"queue": map[string]int{
			"running": running,
			"waiting": waiting,
			"limit":   limit,
		},
	})
}

func (s *server) updateFlags(w http.ResponseWriter, r *http.Request) {
	var patch flags.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.orch.UpdateFlags(patch))
}

func (s *server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearCaches(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "clear cache: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *server) listLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "request logging is disabled")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	entries, err := s.logs.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list logs: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// -------------------------------------------------------------- helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeFeatureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, legalai.ErrFeatureDisabled):
		writeError(w, http.StatusServiceUnavailable, "this feature is temporarily disabled")
	case errors.Is(err, legalai.ErrNoProviders):
		writeError(w, http.StatusServiceUnavailable, "no AI providers are configured")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
