// File path: internal/api/submissions_handler.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/civicworks/progressd/internal/lifecycle"
	"github.com/civicworks/progressd/internal/report"
)

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	actor, programID, periodID, payload, ok := s.decodeSubmissionRequest(w, r)
	if !ok {
		return
	}
	sub, err := s.manager.AutoSave(r.Context(), programID, periodID, payload, actor)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionView(sub, lifecycle.TargetsFromContent(sub.Content)))
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	actor, programID, periodID, payload, ok := s.decodeSubmissionRequest(w, r)
	if !ok {
		return
	}
	sub, err := s.manager.Finalize(r.Context(), programID, periodID, payload, actor)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionView(sub, lifecycle.TargetsFromContent(sub.Content)))
}

func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	programID, periodID, err := submissionPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.manager.Delete(r.Context(), programID, periodID, actor); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
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
	subs, err := s.manager.ListSubmissions(r.Context(), programID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	views := make([]submissionResponse, 0, len(subs))
	for idx := range subs {
		sub := &subs[idx]
		views = append(views, submissionView(sub, lifecycle.TargetsFromContent(sub.Content)))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"submissions": views})
}

func (s *Server) decodeSubmissionRequest(w http.ResponseWriter, r *http.Request) (report.Actor, int64, int64, *report.FieldMap, bool) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return report.Actor{}, 0, 0, nil, false
	}
	programID, periodID, err := submissionPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return report.Actor{}, 0, 0, nil, false
	}
	var req submissionPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return report.Actor{}, 0, 0, nil, false
	}
	if req.Content == nil {
		writeError(w, http.StatusBadRequest, report.Invalid("content", "required"))
		return report.Actor{}, 0, 0, nil, false
	}
	return actor, programID, periodID, req.Content, true
}

func submissionPath(r *http.Request) (int64, int64, error) {
	programID, err := pathID(r, "programID")
	if err != nil {
		return 0, 0, err
	}
	periodID, err := pathID(r, "periodID")
	if err != nil {
		return 0, 0, err
	}
	return programID, periodID, nil
}
