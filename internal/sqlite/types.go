// File path: internal/sqlite/types.go
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/civicworks/progressd/internal/report"
)

// programRow mirrors the programs table.
type programRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	AgencyID     string         `db:"agency_id"`
	InitiativeID sql.NullString `db:"initiative_id"`
	IsDeleted    bool           `db:"is_deleted"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r programRow) toDomain() *report.Program {
	program := &report.Program{
		ID:        r.ID,
		Name:      r.Name,
		AgencyID:  r.AgencyID,
		IsDeleted: r.IsDeleted,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.InitiativeID.Valid {
		program.InitiativeID = r.InitiativeID.String
	}
	return program
}

// submissionRow mirrors the program_submissions table; content stays
// serialized until mapped to the domain type.
type submissionRow struct {
	ID          int64          `db:"id"`
	ProgramID   int64          `db:"program_id"`
	PeriodID    int64          `db:"period_id"`
	IsDraft     bool           `db:"is_draft"`
	Content     string         `db:"content"`
	SubmittedBy sql.NullString `db:"submitted_by"`
	SubmittedAt sql.NullTime   `db:"submitted_at"`
	IsDeleted   bool           `db:"is_deleted"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r submissionRow) toDomain() (*report.Submission, error) {
	content, err := report.ParseFieldMap(r.Content)
	if err != nil {
		return nil, fmt.Errorf("submission %d content: %w", r.ID, err)
	}
	sub := &report.Submission{
		ID:        r.ID,
		ProgramID: r.ProgramID,
		PeriodID:  r.PeriodID,
		IsDraft:   r.IsDraft,
		Content:   content,
		IsDeleted: r.IsDeleted,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.SubmittedBy.Valid {
		sub.SubmittedBy = r.SubmittedBy.String
	}
	if r.SubmittedAt.Valid {
		sub.SubmittedAt = r.SubmittedAt.Time
	}
	return sub, nil
}

// restrictionRow mirrors the user_restrictions table.
type restrictionRow struct {
	ID        int64         `db:"id"`
	UserID    string        `db:"user_id"`
	ProgramID sql.NullInt64 `db:"program_id"`
	MaxRole   string        `db:"max_role"`
	IsActive  bool          `db:"is_active"`
}

func (r restrictionRow) toDomain() report.UserRestriction {
	restriction := report.UserRestriction{
		ID:       r.ID,
		UserID:   r.UserID,
		MaxRole:  report.Role(r.MaxRole),
		IsActive: r.IsActive,
	}
	if r.ProgramID.Valid {
		id := r.ProgramID.Int64
		restriction.ProgramID = &id
	}
	return restriction
}

// auditLogRow mirrors the audit_logs table.
type auditLogRow struct {
	ID          int64          `db:"id"`
	EventID     string         `db:"event_id"`
	Operation   string         `db:"operation"`
	EntityType  string         `db:"entity_type"`
	EntityID    int64          `db:"entity_id"`
	ActorUserID sql.NullString `db:"actor_user_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r auditLogRow) toDomain() report.AuditLogEntry {
	entry := report.AuditLogEntry{
		ID:         r.ID,
		EventID:    r.EventID,
		Operation:  report.Operation(r.Operation),
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		CreatedAt:  r.CreatedAt,
	}
	if r.ActorUserID.Valid {
		entry.ActorUserID = r.ActorUserID.String
	}
	return entry
}

// fieldChangeRow mirrors the audit_field_changes table.
type fieldChangeRow struct {
	ID         int64          `db:"id"`
	AuditLogID int64          `db:"audit_log_id"`
	FieldName  string         `db:"field_name"`
	FieldType  string         `db:"field_type"`
	ChangeType string         `db:"change_type"`
	OldValue   sql.NullString `db:"old_value"`
	NewValue   sql.NullString `db:"new_value"`
}

func (r fieldChangeRow) toDomain() report.FieldChange {
	change := report.FieldChange{
		ID:         r.ID,
		AuditLogID: r.AuditLogID,
		FieldName:  r.FieldName,
		FieldType:  report.FieldType(r.FieldType),
		ChangeType: report.ChangeType(r.ChangeType),
	}
	if r.OldValue.Valid {
		change.OldValue = r.OldValue.String
	}
	if r.NewValue.Valid {
		change.NewValue = r.NewValue.String
	}
	return change
}

// fieldHistoryRow mirrors the submission_field_history view.
type fieldHistoryRow struct {
	EntityID   int64          `db:"entity_id"`
	ProgramID  int64          `db:"program_id"`
	FieldName  string         `db:"field_name"`
	FieldType  string         `db:"field_type"`
	ChangeType string         `db:"change_type"`
	OldValue   sql.NullString `db:"old_value"`
	NewValue   sql.NullString `db:"new_value"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r fieldHistoryRow) toDomain() report.FieldChangeEvent {
	event := report.FieldChangeEvent{
		SubmissionID: r.EntityID,
		FieldName:    r.FieldName,
		FieldType:    report.FieldType(r.FieldType),
		ChangeType:   report.ChangeType(r.ChangeType),
		CreatedAt:    r.CreatedAt,
	}
	if r.OldValue.Valid {
		event.OldValue = r.OldValue.String
	}
	if r.NewValue.Valid {
		event.NewValue = r.NewValue.String
	}
	return event
}
