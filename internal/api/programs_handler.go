// File path: internal/api/programs_handler.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"

	"github.com/civicworks/progressd/internal/authz"
	"github.com/civicworks/progressd/internal/report"
)

func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	var req createProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	program, err := s.manager.CreateProgram(r.Context(), req.Name, req.AgencyID, req.InitiativeID, actor)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, programView(program))
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	programID, err := pathID(r, "programID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	decision, err := s.requireView(r, actor, programID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	program, err := s.store.GetProgram(r.Context(), programID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"program":    programView(program),
		"permission": decision,
	})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	programID, err := pathID(r, "programID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.requireView(r, actor, programID); err != nil {
		writeFailure(w, err)
		return
	}
	if _, err := s.store.GetProgram(r.Context(), programID); err != nil {
		writeFailure(w, err)
		return
	}
	entries, err := s.store.ProgramAuditTrail(r.Context(), programID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": auditView(entries)})
}

// requireView resolves the actor's effective role and rejects actors who
// cannot view the program. The admin override grants view, never edit.
func (s *Server) requireView(r *http.Request, actor report.Actor, programID int64) (authz.Decision, error) {
	decision, err := s.resolver.Resolve(r.Context(), actor, programID)
	if err != nil {
		return authz.Decision{}, fmt.Errorf("resolve role: %w", err)
	}
	if !decision.CanView {
		return authz.Decision{}, fmt.Errorf("actor %s on program %d: %w", actor.UserID, programID, report.ErrPermissionDenied)
	}
	return decision, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}
