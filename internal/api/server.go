// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/civicworks/progressd/internal/audit"
	"github.com/civicworks/progressd/internal/authz"
	"github.com/civicworks/progressd/internal/common"
	"github.com/civicworks/progressd/internal/common/telemetry"
	"github.com/civicworks/progressd/internal/history"
	"github.com/civicworks/progressd/internal/lifecycle"
	"github.com/civicworks/progressd/internal/report"
)

// Server wires the reporting lifecycle components behind a chi router. It is
// a thin transport: decode, resolve the actor, call the component, encode.
type Server struct {
	router    chi.Router
	store     report.Store
	resolver  *authz.Resolver
	manager   *lifecycle.Manager
	projector *history.Projector
}

// NewServer constructs the API server over the given store.
func NewServer(store report.Store) (*Server, error) {
	if store == nil {
		return nil, errors.New("store required")
	}
	resolver := authz.NewResolver(store)
	srv := &Server{
		router:    chi.NewRouter(),
		store:     store,
		resolver:  resolver,
		manager:   lifecycle.NewManager(store, resolver, audit.NewRecorder()),
		projector: history.NewProjector(store),
	}
	srv.routes()
	return srv, nil
}

// Manager exposes the lifecycle manager for embedding callers.
func (s *Server) Manager() *lifecycle.Manager {
	return s.manager
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()
			w.Header().Set("X-Request-Id", requestID)
			next.ServeHTTP(w, r)
			telemetry.RecordRequest(r.Method, time.Since(start))
			logger.Debug("request",
				"method", r.Method, "path", r.URL.Path,
				"dur", time.Since(start), "request_id", requestID, "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/v1/programs", s.handleCreateProgram)
	s.router.Get("/v1/programs/{programID}", s.handleGetProgram)
	s.router.Get("/v1/programs/{programID}/submissions", s.handleListSubmissions)
	s.router.Put("/v1/programs/{programID}/periods/{periodID}/draft", s.handleSaveDraft)
	s.router.Post("/v1/programs/{programID}/periods/{periodID}/finalize", s.handleFinalize)
	s.router.Delete("/v1/programs/{programID}/periods/{periodID}", s.handleDeleteSubmission)
	s.router.Get("/v1/programs/{programID}/history", s.handleFieldHistory)
	s.router.Get("/v1/programs/{programID}/audit", s.handleAuditTrail)
	s.router.Get("/v1/logs", s.handleLogs)
	s.router.Method(http.MethodGet, "/debug/vars", expvar.Handler())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeFailure maps the domain error taxonomy onto HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case report.IsValidation(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, report.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, report.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
