// Package api provides HTTP handlers for the docklite API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/docklite/internal/core/compose"
	"github.com/artpar/docklite/internal/core/domain"
	"github.com/artpar/docklite/internal/core/runtime"
	"github.com/artpar/docklite/internal/shell/api/middleware"
	"github.com/artpar/docklite/internal/shell/docker"
	"github.com/artpar/docklite/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// ContainerRuntime is the per-container surface the API exposes.
type ContainerRuntime interface {
	List(ctx context.Context, opts docker.ListOptions) ([]runtime.ContainerSnapshot, error)
	Inspect(ctx context.Context, id string) (*runtime.ContainerSnapshot, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, opts docker.StopOptions) error
	Restart(ctx context.Context, id string, opts docker.StopOptions) error
	Remove(ctx context.Context, id string, opts docker.RemoveOptions) error
	Logs(ctx context.Context, id string, opts docker.LogOptions) (string, error)
	Stats(ctx context.Context, id string) (*runtime.Stats, error)
}

// Config wires the handler's collaborators.
type Config struct {
	Store        store.Store
	Orchestrator *docker.Orchestrator
	Containers   ContainerRuntime
	APIToken     string
	Logger       *slog.Logger
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	store        store.Store
	orchestrator *docker.Orchestrator
	containers   ContainerRuntime
	auth         *middleware.AuthMiddleware
	logger       *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		containers:   cfg.Containers,
		auth:         middleware.NewAuthMiddleware(middleware.AuthConfig{Token: cfg.APIToken, Logger: cfg.Logger}),
		logger:       cfg.Logger,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.jsonContentType)
		r.Use(h.auth.Handler)

		r.Post("/compose/lint", h.handleLint)

		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", h.handleCreateDeployment)
			r.Get("/", h.handleListDeployments)
			r.Get("/{slug}", h.handleGetDeployment)
			r.Put("/{slug}", h.handleUpdateDeployment)
			r.Delete("/{slug}", h.handleDeleteDeployment)
			r.Post("/{slug}/start", h.handleStartDeployment)
			r.Post("/{slug}/stop", h.handleStopDeployment)
			r.Post("/{slug}/restart", h.handleRestartDeployment)
			r.Get("/{slug}/status", h.handleDeploymentStatus)
			r.Get("/{slug}/logs", h.handleDeploymentLogs)
		})

		r.Route("/containers", func(r chi.Router) {
			r.Get("/", h.handleListContainers)
			r.Get("/{id}", h.handleGetContainer)
			r.Delete("/{id}", h.handleRemoveContainer)
			r.Post("/{id}/start", h.handleStartContainer)
			r.Post("/{id}/stop", h.handleStopContainer)
			r.Post("/{id}/restart", h.handleRestartContainer)
			r.Get("/{id}/logs", h.handleContainerLogs)
			r.Get("/{id}/stats", h.handleContainerStats)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	checks := map[string]string{"database": "ok", "runtime": "ok"}
	ready := true

	if err := h.store.Ping(r.Context()); err != nil {
		checks["database"] = "failed"
		ready = false
	}
	if _, err := h.containers.List(r.Context(), docker.ListOptions{}); err != nil {
		checks["runtime"] = "failed"
		ready = false
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Compose Handlers
// =============================================================================

func (h *Handler) handleLint(w http.ResponseWriter, r *http.Request) {
	var req LintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	doc, err := compose.Parse(req.ComposeContent)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if _, err := doc.FirstService(); err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := LintResponse{
		Valid:     true,
		Port:      compose.DetectInternalPort(doc),
		Variables: compose.ExtractVariablesFromYAML(req.ComposeContent),
	}
	if req.Strict {
		summary, err := compose.Lint(req.ComposeContent)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		resp.Summary = summary
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req docker.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	result, err := h.orchestrator.Deploy(r.Context(), req)
	if err != nil {
		if result != nil {
			// stored, but the runtime refused to start it
			status, code := errorStatus(err)
			h.writeJSON(w, status, struct {
				ErrorResponse
				Deployment *DeploymentResponse `json:"deployment"`
			}{ErrorResponse{Error: errorMessage(err, status), Code: code}, result.Deployment})
			return
		}
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	q := r.URL.Query()

	if limit := q.Get("limit"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid limit", "validation_error")
			return
		}
		opts.Limit = l
	}
	if offset := q.Get("offset"); offset != "" {
		o, err := strconv.Atoi(offset)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid offset", "validation_error")
			return
		}
		opts.Offset = o
	}
	if status := q.Get("status"); status != "" {
		s := domain.DeploymentStatus(status)
		if !s.Valid() {
			h.writeError(w, http.StatusBadRequest, "invalid status", "validation_error")
			return
		}
		opts.Status = s
	}

	deployments, err := h.store.ListDeployments(r.Context(), opts)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newList(deployments))
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := h.orchestrator.Get(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleUpdateDeployment(w http.ResponseWriter, r *http.Request) {
	var req docker.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	result, err := h.orchestrator.Redeploy(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteDeployment(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Remove(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStartDeployment(w http.ResponseWriter, r *http.Request) {
	output, err := h.orchestrator.Start(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{Status: string(domain.StatusRunning), Output: output})
}

func (h *Handler) handleStopDeployment(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Stop(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{Status: string(domain.StatusStopped)})
}

func (h *Handler) handleRestartDeployment(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Restart(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{Status: string(domain.StatusRunning)})
}

func (h *Handler) handleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.orchestrator.Status(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleDeploymentLogs(w http.ResponseWriter, r *http.Request) {
	tail, ok := h.queryInt(w, r, "tail", docker.DefaultLogTail)
	if !ok {
		return
	}

	logs, err := h.orchestrator.Logs(r.Context(), chi.URLParam(r, "slug"), tail)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LogsResponse{Logs: logs})
}

// =============================================================================
// Helpers
// =============================================================================

// queryInt reads an integer query parameter, writing a 400 when it is malformed.
func (h *Handler) queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid "+name, "validation_error")
		return 0, false
	}
	return n, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeDomainError maps err to a status and writes it. Unexpected errors are
// logged and hidden from the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeError(w, status, errorMessage(err, status), code)
}
