// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"axonflow/omnisearch/shared/logger"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch     *Orchestrator
	registry *prometheus.Registry
	log      *logger.Logger
}

// NewServer wraps an orchestrator with the HTTP API.
func NewServer(orch *Orchestrator, reg *prometheus.Registry) *Server {
	return &Server{
		orch:     orch,
		registry: reg,
		log:      logger.New("http"),
	}
}

// Handler builds the full route table wrapped in CORS and the
// request-ID middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	r.HandleFunc("/api/v1/search", s.searchHandler).Methods("POST")
	r.HandleFunc("/api/v1/ai-search", s.aiSearchHandler).Methods("POST")
	r.HandleFunc("/api/v1/analyze", s.analyzeHandler).Methods("POST")

	r.HandleFunc("/api/v1/providers/health", s.providerHealthHandler).Methods("GET")
	r.HandleFunc("/api/v1/providers/config", s.providerConfigHandler).Methods("GET")
	r.HandleFunc("/api/v1/providers/configure", s.configureHandler).Methods("POST")
	r.HandleFunc("/api/v1/providers/{name}/reset", s.resetProviderHandler).Methods("POST")

	r.HandleFunc("/api/v1/performance", s.performanceHandler).Methods("GET")
	r.HandleFunc("/api/v1/mode", s.getModeHandler).Methods("GET")
	r.HandleFunc("/api/v1/mode", s.setModeHandler).Methods("PUT")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(s.requestIDMiddleware(r))
}

// requestIDMiddleware assigns every request an ID, honoring one the
// caller already set.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// searchRequest is the body of the search endpoints.
type searchRequest struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	s.handleSearch(w, r, s.orch.UnifiedSearch)
}

func (s *Server) aiSearchHandler(w http.ResponseWriter, r *http.Request) {
	s.handleSearch(w, r, s.orch.UnifiedAISearch)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, search func(context.Context, SearchParams) UnifiedResult) {
	requestID := requestIDFrom(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, requestID, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		s.sendError(w, requestID, "query is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := search(r.Context(), SearchParams{
		Query:          req.Query,
		Limit:          req.Limit,
		IncludeDomains: req.IncludeDomains,
		ExcludeDomains: req.ExcludeDomains,
	})

	s.log.InfoWithDuration(requestID, "search completed", float64(time.Since(start).Milliseconds()), map[string]interface{}{
		"provider": result.Provider,
		"success":  result.Success,
		"results":  len(result.Results),
	})
	s.sendJSON(w, requestID, result)
}

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, requestID, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		s.sendError(w, requestID, "query is required", http.StatusBadRequest)
		return
	}

	s.sendJSON(w, requestID, s.orch.AnalyzeQuery(req.Query))
}

func (s *Server) providerHealthHandler(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, requestIDFrom(r.Context()), s.orch.ProviderHealthReport())
}

func (s *Server) providerConfigHandler(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, requestIDFrom(r.Context()), s.orch.ProviderConfig())
}

func (s *Server) configureHandler(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())

	var req ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, requestID, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.orch.ConfigureProviders(req); err != nil {
		s.sendError(w, requestID, err.Error(), http.StatusBadRequest)
		return
	}

	s.sendJSON(w, requestID, s.orch.ProviderConfig())
}

func (s *Server) resetProviderHandler(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	name := mux.Vars(r)["name"]

	if err := s.orch.ResetProviderHealth(name); err != nil {
		s.sendError(w, requestID, err.Error(), http.StatusNotFound)
		return
	}

	s.sendJSON(w, requestID, map[string]string{
		"status":   "success",
		"provider": name,
	})
}

func (s *Server) performanceHandler(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, requestIDFrom(r.Context()), s.orch.PerformanceInsightsReport())
}

func (s *Server) getModeHandler(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, requestIDFrom(r.Context()), map[string]string{"mode": string(s.orch.Mode())})
}

func (s *Server) setModeHandler(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())

	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, requestID, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.orch.SetMode(Mode(req.Mode)); err != nil {
		s.sendError(w, requestID, err.Error(), http.StatusBadRequest)
		return
	}

	s.sendJSON(w, requestID, map[string]string{"mode": string(s.orch.Mode())})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	report := s.orch.ProviderHealthReport()

	s.sendJSON(w, requestIDFrom(r.Context()), map[string]interface{}{
		"status":              "healthy",
		"service":             "omnisearch",
		"timestamp":           time.Now().UTC(),
		"mode":                string(s.orch.Mode()),
		"providers_total":     len(report.Providers),
		"providers_available": len(report.AvailableSearch) + len(report.AvailableAIResponse),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, requestID string, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error(requestID, "failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) sendError(w http.ResponseWriter, requestID, message string, status int) {
	s.log.Warn(requestID, message, map[string]interface{}{"status": status})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	}); err != nil {
		s.log.Error(requestID, "failed to encode error response", map[string]interface{}{"error": err.Error()})
	}
}
