// File path: internal/api/history_handler.go
package api

import (
	"net/http"
	"strings"
)

func (s *Server) handleFieldHistory(w http.ResponseWriter, r *http.Request) {
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
	field := strings.TrimSpace(r.URL.Query().Get("field"))
	entries, err := s.projector.FieldHistory(r.Context(), programID, field)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"field":   field,
		"history": entries,
	})
}
