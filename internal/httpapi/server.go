// Package httpapi binds the orchestrator, run manager, artifact store,
// and session manager to the REST/SSE surface: task submission and
// polling, an SSE event stream per task, artifact retrieval, and
// session CRUD.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/browseragent/control-plane/internal/artifact"
	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/orchestrator"
	"github.com/browseragent/control-plane/internal/runmanager"
	"github.com/browseragent/control-plane/internal/tools"
	"github.com/browseragent/control-plane/internal/toolsurface"
)

// Server wires the control plane into an http.Handler.
type Server struct {
	orch      *orchestrator.Orchestrator
	runs      *runmanager.Manager
	artifacts *artifact.Store
	sessions  *toolsurface.SessionManager
	registry  *prometheus.Registry
	tools     *tools.Registry
	events    *EventHub
	log       *slog.Logger

	tasks *taskRegistry
}

// Options configures New.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Runs         *runmanager.Manager
	Artifacts    *artifact.Store
	Sessions     *toolsurface.SessionManager
	// Registry is gathered for GET /metrics. Pass a *prometheus.Registry;
	// the process-wide default registerer is also a *prometheus.Registry
	// in this repo's usage (internal/metrics registers into it), so the
	// same value serves both writes (metrics.New) and reads (here).
	Registry *prometheus.Registry
	// Tools, if set, exposes the tool catalog over POST /v1/tools/{name}:
	// the JSON-text-content-block envelope of the tool protocol, served
	// over plain HTTP framing.
	Tools *tools.Registry
	// Events, if set, is broadcast to GET /v1/events WebSocket clients.
	Events *EventHub
	Log    *slog.Logger
}

// New builds a Server. Call Handler to get the http.Handler to serve.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		orch:      opts.Orchestrator,
		runs:      opts.Runs,
		artifacts: opts.Artifacts,
		sessions:  opts.Sessions,
		registry:  opts.Registry,
		tools:     opts.Tools,
		events:    opts.Events,
		log:       log,
		tasks:     newTaskRegistry(),
	}
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /v1/tasks/{id}", s.handleCancelTask)
	mux.HandleFunc("GET /v1/tasks/{id}/events", s.handleTaskEvents)

	mux.HandleFunc("GET /v1/artifacts/{id}", s.handleGetArtifact)

	if s.tools != nil {
		mux.HandleFunc("GET /v1/tools", s.handleListTools)
		mux.HandleFunc("POST /v1/tools/{name}", s.handleCallTool)
	}

	mux.HandleFunc("GET /v1/events", s.handleEvents)

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /v1/sessions/{id}/tabs", s.handleCreateTab)
	mux.HandleFunc("DELETE /v1/sessions/{id}/tabs/{tabId}", s.handleCloseTab)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return withRequestLogging(s.log, mux)
}

// handleListTools returns the catalog's tool names and groups.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Names(), "groups": s.tools.Groups()})
}

// handleCallTool invokes one tool and returns the protocol envelope.
// Always 200: errors surface inside the envelope with isError=true.
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeError(w, errs.New(errs.InvalidParameter, "invalid argument object: "+err.Error()))
		return
	}
	result := s.tools.Execute(r.Context(), r.PathValue("name"), args)
	writeJSON(w, http.StatusOK, tools.ToEnvelope(result))
}

func withRequestLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug("http request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, ok := errs.CodeOf(err)
	status := http.StatusInternalServerError
	if ok {
		status = statusForCode(code)
	}
	writeJSON(w, status, map[string]any{"error": err.Error(), "errorCode": string(code)})
}

func statusForCode(code errs.Code) int {
	switch code {
	case errs.InvalidParameter:
		return http.StatusBadRequest
	case errs.TemplateNotFound, errs.RunNotFound, errs.SessionNotFound:
		return http.StatusNotFound
	case errs.RunCanceled:
		return http.StatusConflict
	case errs.RunTimeout:
		return http.StatusGatewayTimeout
	case errs.RunBackpressure:
		return http.StatusTooManyRequests
	case errs.TrustLevelNotAllowed:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
