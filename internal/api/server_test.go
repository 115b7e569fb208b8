// File path: internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/civicworks/progressd/internal/report"
	"github.com/civicworks/progressd/internal/sqlite"
)

type testEnv struct {
	server  *Server
	store   *sqlite.Store
	periods []int64
}

func newTestEnv(t *testing.T, periodCount int) *testEnv {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "reporting.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	server, err := NewServer(store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	periods := make([]int64, 0, periodCount)
	for number := 1; number <= periodCount; number++ {
		id, err := store.InsertPeriod(context.Background(), &report.ReportingPeriod{
			PeriodType: "quarterly", PeriodNumber: number, Year: 2026, IsOpen: true,
		})
		if err != nil {
			t.Fatalf("insert period %d: %v", number, err)
		}
		periods = append(periods, id)
	}
	return &testEnv{server: server, store: store, periods: periods}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func ownerHeaders() map[string]string {
	return map[string]string{"X-Actor-Id": "owner-1", "X-Actor-Agency": "agency-a"}
}

func (e *testEnv) createProgram(t *testing.T) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/programs", map[string]string{
		"name": "Broadband Expansion", "agency_id": "agency-a",
	}, ownerHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create program: status %d body %s", rec.Code, rec.Body.String())
	}
	var program struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &program); err != nil {
		t.Fatalf("decode program: %v", err)
	}
	if _, err := e.store.SaveAssignment(context.Background(), &report.AgencyAssignment{
		ProgramID: program.ID, AgencyID: "agency-a", Role: report.RoleOwner, IsActive: true,
	}); err != nil {
		t.Fatalf("save assignment: %v", err)
	}
	return program.ID
}

func contentBody(raw json.RawMessage) map[string]json.RawMessage {
	return map[string]json.RawMessage{"content": raw}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	env := newTestEnv(t, 1)
	rec := env.do(t, http.MethodPost, "/v1/programs", map[string]string{"name": "X", "agency_id": "a"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor, got %d", rec.Code)
	}
}

func TestFinalizeCascadeOverHTTP(t *testing.T) {
	env := newTestEnv(t, 2)
	programID := env.createProgram(t)
	base := fmt.Sprintf("/v1/programs/%d", programID)

	rec := env.do(t, http.MethodPut,
		fmt.Sprintf("%s/periods/%d/draft", base, env.periods[0]),
		contentBody(json.RawMessage(`{"rating": "on_track", "notes": "Q1 narrative"}`)), ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("autosave period 1: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPut,
		fmt.Sprintf("%s/periods/%d/draft", base, env.periods[1]),
		contentBody(json.RawMessage(`{"rating": "delayed"}`)), ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("autosave period 2: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost,
		fmt.Sprintf("%s/periods/%d/finalize", base, env.periods[1]),
		contentBody(json.RawMessage(`{"rating": "on_track"}`)), ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, base+"/submissions", nil, ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("list submissions: status %d", rec.Code)
	}
	var listed struct {
		Submissions []struct {
			PeriodID int64            `json:"period_id"`
			IsDraft  bool             `json:"is_draft"`
			Content  *report.FieldMap `json:"content"`
		} `json:"submissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode submissions: %v", err)
	}
	if len(listed.Submissions) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(listed.Submissions))
	}
	for _, sub := range listed.Submissions {
		if sub.IsDraft {
			t.Fatalf("period %d still draft after cascading finalization", sub.PeriodID)
		}
		if sub.PeriodID == env.periods[0] {
			notes, ok := sub.Content.Get("notes")
			if !ok || notes.StringVal() != "Q1 narrative" {
				t.Fatalf("cascade must not touch other periods' content: %s", rec.Body.String())
			}
		}
	}
}

func TestSaveDraftExpandsLegacyTargets(t *testing.T) {
	env := newTestEnv(t, 1)
	programID := env.createProgram(t)

	rec := env.do(t, http.MethodPut,
		fmt.Sprintf("/v1/programs/%d/periods/%d/draft", programID, env.periods[0]),
		contentBody(json.RawMessage(`{"target_text": "A; B", "status_description": "S1; S2"}`)), ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("autosave: status %d body %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		Targets []report.Target `json:"targets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(saved.Targets) != 2 {
		t.Fatalf("expected 2 expanded targets, got %+v", saved.Targets)
	}
	if saved.Targets[0] != (report.Target{Text: "A", StatusDescription: "S1"}) {
		t.Fatalf("unexpected first target: %+v", saved.Targets[0])
	}
}

func TestViewerCannotMutate(t *testing.T) {
	env := newTestEnv(t, 1)
	programID := env.createProgram(t)
	if _, err := env.store.SaveAssignment(context.Background(), &report.AgencyAssignment{
		ProgramID: programID, AgencyID: "agency-b", Role: report.RoleViewer, IsActive: true,
	}); err != nil {
		t.Fatalf("save assignment: %v", err)
	}
	viewer := map[string]string{"X-Actor-Id": "viewer-1", "X-Actor-Agency": "agency-b"}

	rec := env.do(t, http.MethodPut,
		fmt.Sprintf("/v1/programs/%d/periods/%d/draft", programID, env.periods[0]),
		contentBody(json.RawMessage(`{"rating": "on_track"}`)), viewer)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer draft save, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/programs/%d", programID), nil, viewer)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer must read the program, got %d", rec.Code)
	}

	stranger := map[string]string{"X-Actor-Id": "other-1", "X-Actor-Agency": "agency-z"}
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/programs/%d", programID), nil, stranger)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unassigned reader, got %d", rec.Code)
	}

	admin := map[string]string{"X-Actor-Id": "admin-1", "X-Actor-Agency": "agency-z", "X-Actor-Admin": "true"}
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/programs/%d", programID), nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin override must grant read, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete,
		fmt.Sprintf("/v1/programs/%d/periods/%d", programID, env.periods[0]), nil, admin)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("admin override must not grant delete, got %d", rec.Code)
	}
}

func TestAuditAndHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, 1)
	programID := env.createProgram(t)
	base := fmt.Sprintf("/v1/programs/%d", programID)

	for _, rating := range []string{"on_track", "delayed"} {
		rec := env.do(t, http.MethodPut,
			fmt.Sprintf("%s/periods/%d/draft", base, env.periods[0]),
			contentBody(json.RawMessage(fmt.Sprintf(`{"rating": %q}`, rating))), ownerHeaders())
		if rec.Code != http.StatusOK {
			t.Fatalf("autosave %s: status %d body %s", rating, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, http.MethodGet, base+"/audit", nil, ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("audit trail: status %d", rec.Code)
	}
	var audit struct {
		Entries []struct {
			Operation string `json:"operation"`
			Changes   []struct {
				FieldName  string `json:"field_name"`
				ChangeType string `json:"change_type"`
			} `json:"changes"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &audit); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	// Program create, submission create, submission update.
	if len(audit.Entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d: %s", len(audit.Entries), rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, base+"/history?field=rating", nil, ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status %d", rec.Code)
	}
	var history struct {
		Field   string `json:"field"`
		History []struct {
			Value string `json:"value"`
		} `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if history.Field != "rating" || len(history.History) != 2 {
		t.Fatalf("expected 2 history entries, got %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, base+"/history", nil, ownerHeaders())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing field param, got %d", rec.Code)
	}
}

func TestDeleteSubmissionOverHTTP(t *testing.T) {
	env := newTestEnv(t, 1)
	programID := env.createProgram(t)
	path := fmt.Sprintf("/v1/programs/%d/periods/%d", programID, env.periods[0])

	rec := env.do(t, http.MethodPut, path+"/draft",
		contentBody(json.RawMessage(`{"rating": "on_track"}`)), ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("autosave: status %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, path, nil, ownerHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodDelete, path, nil, ownerHeaders())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for second delete, got %d", rec.Code)
	}
}

func TestUnknownProgramIs404(t *testing.T) {
	env := newTestEnv(t, 1)
	headers := map[string]string{"X-Actor-Id": "u1", "X-Actor-Agency": "agency-a", "X-Actor-Admin": "true"}
	rec := env.do(t, http.MethodGet, "/v1/programs/9999", nil, headers)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
