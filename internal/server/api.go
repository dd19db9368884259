package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/loomctl/loom/internal/mapping"
	"github.com/loomctl/loom/internal/observability"
	"github.com/loomctl/loom/internal/retrieval"
	"github.com/loomctl/loom/internal/store"
	"github.com/loomctl/loom/internal/tokens"
	"github.com/loomctl/loom/internal/workflow"
)

// Migrator is the slice of the workflow engine the API needs.
type Migrator interface {
	Run(ctx context.Context, req workflow.Request) (*workflow.Outcome, error)
}

// SectionRetriever covers both retrieval entry points.
type SectionRetriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
	RetrieveBySection(ctx context.Context, assets *mapping.Assets, q retrieval.SectionQuery) (*retrieval.SectionResult, error)
}

// Rebuilder re-syncs the vector index from the store.
type Rebuilder interface {
	Rebuild(ctx context.Context, reader store.Reader) error
}

// APIConfig wires the API server's dependencies.
type APIConfig struct {
	Retriever  SectionRetriever
	Migrator   Migrator
	Rebuilder  Rebuilder
	Reader     store.Reader
	Assets     *mapping.Assets
	Health     *Health
	Metrics    *observability.LoomMetrics
	Counter    tokens.Counter
	SourceRepo string
	TargetRepo string
	Logger     *slog.Logger
}

// API is the HTTP surface of the migration service.
type API struct {
	cfg        APIConfig
	logger     *slog.Logger
	mux        *http.ServeMux
	rebuilding atomic.Bool
}

// NewAPI builds the API and mounts its routes.
func NewAPI(cfg APIConfig) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.Metrics()
	}
	if cfg.Counter == nil {
		cfg.Counter = tokens.NewEstimator()
	}
	a := &API{cfg: cfg, logger: logger, mux: http.NewServeMux()}

	a.mux.HandleFunc("POST /retrieve_tokens", a.handleRetrieveTokens)
	a.mux.HandleFunc("POST /retrieve_by_section", a.handleRetrieveBySection)
	a.mux.HandleFunc("POST /migrate", a.handleMigrate)
	a.mux.HandleFunc("POST /index/rebuild", a.handleRebuild)
	a.mux.Handle("GET /metrics", cfg.Metrics.Handler())
	if cfg.Health != nil {
		cfg.Health.Register(a.mux)
	}
	return a
}

// Handler returns the API's root handler.
func (a *API) Handler() http.Handler {
	return a.mux
}

// ListenAndServe runs the API server until ctx is cancelled, then shuts it
// down gracefully.
func (a *API) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // migrations hold the connection open
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.logger.Info("api server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type retrieveTokensRequest struct {
	Query       string `json:"query"`
	Section     string `json:"section,omitempty"`
	Repository  string `json:"repository,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
	TokenBudget int    `json:"token_budget,omitempty"`
}

func (a *API) handleRetrieveTokens(w http.ResponseWriter, r *http.Request) {
	var req retrieveTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	result, err := a.cfg.Retriever.Retrieve(r.Context(), retrieval.Query{
		Text:        req.Query,
		Section:     store.ParseSection(req.Section),
		Repository:  req.Repository,
		TopK:        req.TopK,
		TokenBudget: req.TokenBudget,
	})
	if err != nil {
		a.cfg.Metrics.RecordRetrieval(time.Since(start), 0, err)
		a.respondRetrievalError(w, err)
		return
	}
	a.cfg.Metrics.RecordRetrieval(time.Since(start), result.TotalTokens, nil)
	a.respondJSON(w, http.StatusOK, retrieveTokensResponse{
		Result:      result,
		InputTokens: a.cfg.Counter.Count(req.Query),
	})
}

type retrieveTokensResponse struct {
	*retrieval.Result
	InputTokens int `json:"input_tokens"`
}

type retrieveBySectionRequest struct {
	Code        string `json:"code"`
	PerSection  int    `json:"per_section,omitempty"`
	TokenBudget int    `json:"token_budget,omitempty"`
}

type retrieveBySectionResponse struct {
	*retrieval.SectionResult
	ContextText string `json:"context_text"`
	InputTokens int    `json:"input_tokens"`
}

func (a *API) handleRetrieveBySection(w http.ResponseWriter, r *http.Request) {
	var req retrieveBySectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := a.cfg.Retriever.RetrieveBySection(r.Context(), a.cfg.Assets, retrieval.SectionQuery{
		Code:        req.Code,
		SourceRepo:  a.cfg.SourceRepo,
		TargetRepo:  a.cfg.TargetRepo,
		PerSection:  req.PerSection,
		TokenBudget: req.TokenBudget,
	})
	if err != nil {
		a.respondRetrievalError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, retrieveBySectionResponse{
		SectionResult: result,
		ContextText:   result.PromptText(),
		InputTokens:   a.cfg.Counter.Count(req.Code),
	})
}

func (a *API) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req workflow.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceRepo == "" {
		req.SourceRepo = a.cfg.SourceRepo
	}
	if req.TargetRepo == "" {
		req.TargetRepo = a.cfg.TargetRepo
	}

	start := time.Now()
	a.cfg.Metrics.ActiveMigrations.Inc()
	outcome, err := a.cfg.Migrator.Run(r.Context(), req)
	a.cfg.Metrics.ActiveMigrations.Dec()
	if err != nil {
		if errors.Is(err, workflow.ErrInvalidRequest) {
			a.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("migration run failed", "error", err)
		a.respondError(w, http.StatusInternalServerError, "migration failed")
		return
	}
	a.cfg.Metrics.RecordMigration(time.Since(start), outcome.Attempts, outcome.Status == workflow.StatusMigrated)
	// Exhausted retries and refinements are reported in the body, not as an
	// HTTP error; the request itself succeeded.
	a.respondJSON(w, http.StatusOK, migrateResponse{
		Outcome:      outcome,
		InputTokens:  a.cfg.Counter.Count(req.Code),
		OutputTokens: a.cfg.Counter.Count(outcome.Candidate),
	})
}

type migrateResponse struct {
	*workflow.Outcome
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// handleRebuild starts an index rebuild in the background and responds 202.
// A second request while one is in flight gets 409; rebuilds walk the whole
// store and must not stack.
func (a *API) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if !a.rebuilding.CompareAndSwap(false, true) {
		a.respondError(w, http.StatusConflict, "index rebuild already in progress")
		return
	}

	go func() {
		defer a.rebuilding.Store(false)
		start := time.Now()
		if err := a.cfg.Rebuilder.Rebuild(context.Background(), a.cfg.Reader); err != nil {
			a.logger.Error("index rebuild failed", "error", err)
			return
		}
		a.logger.Info("index rebuild finished", "duration", time.Since(start))
	}()

	a.respondJSON(w, http.StatusAccepted, map[string]string{"status": "rebuilding"})
}

func (a *API) respondRetrievalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retrieval.ErrInvalidQuery):
		a.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, retrieval.ErrRetrievalFailed):
		a.respondError(w, http.StatusBadGateway, "embedding backend unavailable")
	default:
		a.logger.Error("retrieval failed", "error", err)
		a.respondError(w, http.StatusInternalServerError, "retrieval failed")
	}
}

func (a *API) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error("encoding response", "error", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, msg string) {
	a.respondJSON(w, status, map[string]string{"error": msg})
}
