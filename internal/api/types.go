// File path: internal/api/types.go
package api

import (
	"time"

	"github.com/civicworks/progressd/internal/report"
)

type createProgramRequest struct {
	Name         string `json:"name"`
	AgencyID     string `json:"agency_id"`
	InitiativeID string `json:"initiative_id,omitempty"`
}

type programResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	AgencyID     string    `json:"agency_id"`
	InitiativeID string    `json:"initiative_id,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

func programView(program *report.Program) programResponse {
	return programResponse{
		ID:           program.ID,
		Name:         program.Name,
		AgencyID:     program.AgencyID,
		InitiativeID: program.InitiativeID,
		CreatedAt:    program.CreatedAt,
		UpdatedAt:    program.UpdatedAt,
	}
}

// submissionPayload carries the report content as an ordered field map; key
// order survives the JSON round-trip.
type submissionPayload struct {
	Content *report.FieldMap `json:"content"`
}

type submissionResponse struct {
	ID          int64            `json:"id"`
	ProgramID   int64            `json:"program_id"`
	PeriodID    int64            `json:"period_id"`
	IsDraft     bool             `json:"is_draft"`
	Content     *report.FieldMap `json:"content"`
	Targets     []report.Target  `json:"targets,omitempty"`
	SubmittedBy string           `json:"submitted_by,omitempty"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
}

func submissionView(sub *report.Submission, targets []report.Target) submissionResponse {
	view := submissionResponse{
		ID:          sub.ID,
		ProgramID:   sub.ProgramID,
		PeriodID:    sub.PeriodID,
		IsDraft:     sub.IsDraft,
		Content:     sub.Content,
		Targets:     targets,
		SubmittedBy: sub.SubmittedBy,
	}
	if !sub.SubmittedAt.IsZero() {
		at := sub.SubmittedAt.UTC()
		view.SubmittedAt = &at
	}
	return view
}

type auditEntryResponse struct {
	ID          int64                 `json:"id"`
	EventID     string                `json:"event_id"`
	Operation   report.Operation      `json:"operation"`
	EntityType  string                `json:"entity_type"`
	EntityID    int64                 `json:"entity_id"`
	ActorUserID string                `json:"actor_user_id,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	Changes     []fieldChangeResponse `json:"changes"`
}

type fieldChangeResponse struct {
	FieldName  string            `json:"field_name"`
	FieldType  report.FieldType  `json:"field_type"`
	ChangeType report.ChangeType `json:"change_type"`
	OldValue   string            `json:"old_value,omitempty"`
	NewValue   string            `json:"new_value,omitempty"`
}

func auditView(entries []report.AuditLogEntry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		view := auditEntryResponse{
			ID:          entry.ID,
			EventID:     entry.EventID,
			Operation:   entry.Operation,
			EntityType:  entry.EntityType,
			EntityID:    entry.EntityID,
			ActorUserID: entry.ActorUserID,
			CreatedAt:   entry.CreatedAt,
			Changes:     make([]fieldChangeResponse, 0, len(entry.Changes)),
		}
		for _, change := range entry.Changes {
			view.Changes = append(view.Changes, fieldChangeResponse{
				FieldName:  change.FieldName,
				FieldType:  change.FieldType,
				ChangeType: change.ChangeType,
				OldValue:   change.OldValue,
				NewValue:   change.NewValue,
			})
		}
		out = append(out, view)
	}
	return out
}
