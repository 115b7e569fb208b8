// File path: internal/report/types.go
package report

import "time"

// Role is the permission level an agency assignment grants on a program.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = "none"
)

// rank orders roles by privilege so layered assignments resolve to the most
// privileged row and restrictions can only narrow.
func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// MorePrivileged reports whether r outranks other.
func (r Role) MorePrivileged(other Role) bool {
	return r.rank() > other.rank()
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Actor identifies the authenticated user performing an operation. It is
// supplied by the external authentication layer and passed explicitly into
// every mutating call; nothing in this module reads ambient session state.
type Actor struct {
	UserID   string
	AgencyID string
	Admin    bool
}

// Program is the top-level reportable entity an agency is accountable for.
// Programs are created empty and never own a submission at creation time.
type Program struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	AgencyID     string    `db:"agency_id"`
	InitiativeID string    `db:"initiative_id"`
	IsDeleted    bool      `db:"is_deleted"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// ReportingPeriod is immutable reference data describing one reporting cycle.
type ReportingPeriod struct {
	ID           int64  `db:"id"`
	PeriodType   string `db:"period_type"`
	PeriodNumber int    `db:"period_number"`
	Year         int    `db:"year"`
	IsOpen       bool   `db:"is_open"`
}

// Submission holds one program's report content for one reporting period.
// At most one live (is_deleted=false) row exists per (program, period).
type Submission struct {
	ID          int64     `db:"id"`
	ProgramID   int64     `db:"program_id"`
	PeriodID    int64     `db:"period_id"`
	IsDraft     bool      `db:"is_draft"`
	Content     *FieldMap `db:"-"`
	SubmittedBy string    `db:"submitted_by"`
	SubmittedAt time.Time `db:"submitted_at"`
	IsDeleted   bool      `db:"is_deleted"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Target is one discrete deliverable entry within a submission.
type Target struct {
	Text              string `json:"text"`
	StatusDescription string `json:"status_description"`
}

// AgencyAssignment links an agency to a program with a role. A program may
// carry several rows per agency; resolution takes the most privileged active
// one.
type AgencyAssignment struct {
	ID        int64  `db:"id"`
	ProgramID int64  `db:"program_id"`
	AgencyID  string `db:"agency_id"`
	Role      Role   `db:"role"`
	IsActive  bool   `db:"is_active"`
}

// UserRestriction caps a single user's effective role below the agency
// assignment. A nil ProgramID applies to every program.
type UserRestriction struct {
	ID        int64  `db:"id"`
	UserID    string `db:"user_id"`
	ProgramID *int64 `db:"program_id"`
	MaxRole   Role   `db:"max_role"`
	IsActive  bool   `db:"is_active"`
}

// Operation classifies an audited mutation.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeType classifies one key-level difference in a before/after diff.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// FieldType is the inferred type of an audited field value.
type FieldType string

const (
	FieldNull    FieldType = "null"
	FieldBoolean FieldType = "boolean"
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldDate    FieldType = "date"
	FieldJSON    FieldType = "json"
	FieldText    FieldType = "text"
)

// Audited entity families.
const (
	EntitySubmission = "submission"
	EntityProgram    = "program"
)

// AuditLogEntry summarizes one audited mutation and owns its field changes.
type AuditLogEntry struct {
	ID          int64     `db:"id"`
	EventID     string    `db:"event_id"`
	Operation   Operation `db:"operation"`
	EntityType  string    `db:"entity_type"`
	EntityID    int64     `db:"entity_id"`
	ActorUserID string    `db:"actor_user_id"`
	CreatedAt   time.Time `db:"created_at"`
	Changes     []FieldChange
}

// FieldChange records one key-level difference captured by an audit entry.
// Old and new values are text-serialized.
type FieldChange struct {
	ID         int64      `db:"id"`
	AuditLogID int64      `db:"audit_log_id"`
	FieldName  string     `db:"field_name"`
	FieldType  FieldType  `db:"field_type"`
	ChangeType ChangeType `db:"change_type"`
	OldValue   string     `db:"old_value"`
	NewValue   string     `db:"new_value"`
}

// FieldChangeEvent is the read model the history projector consumes: one
// recorded change of one field on one submission, stamped with the audit
// entry's creation time.
type FieldChangeEvent struct {
	SubmissionID int64      `db:"entity_id"`
	FieldName    string     `db:"field_name"`
	FieldType    FieldType  `db:"field_type"`
	ChangeType   ChangeType `db:"change_type"`
	OldValue     string     `db:"old_value"`
	NewValue     string     `db:"new_value"`
	CreatedAt    time.Time  `db:"created_at"`
}
