// Package server exposes the answering pipeline over HTTP: POST /v1/ask plus
// health, readiness and metrics endpoints, with graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/selimacar/sage/internal/answer"
	"github.com/selimacar/sage/internal/credential"
	"github.com/selimacar/sage/internal/llm"
	"github.com/selimacar/sage/internal/observability"
)

// Asker is the answering dependency, satisfied by *answer.Service.
type Asker interface {
	Ask(ctx context.Context, req answer.Request) (*answer.Result, error)
	SuggestTags(ctx context.Context, tenantID, text string) ([]string, error)
}

// API serves the query pipeline.
type API struct {
	asker   Asker
	metrics *observability.QueryMetrics
	logger  *slog.Logger
	health  *Health
}

// NewAPI creates the HTTP surface. metrics and logger may be nil.
func NewAPI(asker Asker, metrics *observability.QueryMetrics, health *Health, logger *slog.Logger) *API {
	if metrics == nil {
		metrics = observability.Metrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = NewHealth("")
	}
	return &API{asker: asker, metrics: metrics, logger: logger, health: health}
}

// Handler returns the routed handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/ask", a.handleAsk)
	mux.HandleFunc("POST /v1/tags", a.handleTags)
	mux.HandleFunc("GET /healthz", a.health.handleLive)
	mux.HandleFunc("GET /readyz", a.health.handleReady)
	mux.Handle("GET /metrics", a.metrics.Handler())
	return mux
}

type askRequest struct {
	Query       string        `json:"query"`
	TenantID    string        `json:"tenant_id,omitempty"`
	PrincipalID string        `json:"principal_id,omitempty"`
	Provider    string        `json:"provider,omitempty"`
	TopK        int           `json:"top_k,omitempty"`
	History     []llm.Message `json:"history,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	start := time.Now()
	res, err := a.asker.Ask(r.Context(), answer.Request{
		Query:       req.Query,
		TenantID:    req.TenantID,
		PrincipalID: req.PrincipalID,
		Provider:    req.Provider,
		TopK:        req.TopK,
		History:     req.History,
	})
	if err != nil {
		a.metrics.RecordLLMCall(0, err)
		a.writeAskError(w, err)
		return
	}

	a.metrics.RecordQuery(time.Since(start), res.Blocked, res.IsLowConfidence, len(res.Citations))
	writeJSON(w, http.StatusOK, res)
}

type tagsRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Text     string `json:"text"`
}

func (a *API) handleTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	tags, err := a.asker.SuggestTags(r.Context(), req.TenantID, req.Text)
	if err != nil {
		a.writeAskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

// writeAskError maps pipeline errors onto HTTP statuses. Configuration
// problems are client-actionable, rate limits carry a Retry-After hint and
// anything else is a plain 502 with the upstream message preserved.
func (a *API) writeAskError(w http.ResponseWriter, err error) {
	var rateErr *llm.RateLimitError
	switch {
	case errors.Is(err, credential.ErrNotConfigured):
		writeError(w, http.StatusUnprocessableEntity, "provider_not_configured", err.Error())
	case errors.Is(err, credential.ErrExpired):
		writeError(w, http.StatusUnprocessableEntity, "credential_expired", err.Error())
	case errors.Is(err, credential.ErrDecryption):
		a.logger.Error("credential decryption failure surfaced to request", "error", err)
		writeError(w, http.StatusInternalServerError, "credential_unreadable", "credential could not be decrypted")
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.Hint().Seconds())))
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	default:
		a.logger.Warn("query failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation_failed", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
