// File path: internal/report/store.go
package report

import (
	"context"
	"time"
)

// Store is the persistence surface the lifecycle, authorization, and history
// components consume. The sqlite catalog is the production implementation.
type Store interface {
	// Program reference data.
	GetProgram(ctx context.Context, programID int64) (*Program, error)
	GetPeriod(ctx context.Context, periodID int64) (*ReportingPeriod, error)

	// Submission reads return live (is_deleted=false) rows only.
	GetSubmission(ctx context.Context, programID, periodID int64) (*Submission, error)
	ListSubmissions(ctx context.Context, programID int64) ([]Submission, error)

	// Authorization inputs.
	AssignmentsForAgency(ctx context.Context, programID int64, agencyID string) ([]AgencyAssignment, error)
	RestrictionsForUser(ctx context.Context, userID string, programID int64) ([]UserRestriction, error)

	// Audit reads.
	AuditTrail(ctx context.Context, entityType string, entityID int64) ([]AuditLogEntry, error)
	ProgramAuditTrail(ctx context.Context, programID int64) ([]AuditLogEntry, error)
	SubmissionFieldChanges(ctx context.Context, programID int64, fieldName string) ([]FieldChangeEvent, error)

	// RunInTx executes fn inside a single store transaction. A non-nil error
	// from fn rolls the transaction back.
	RunInTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the mutating surface available inside a store transaction. Every
// lifecycle write and its audit trail go through one Tx so a mid-cascade
// failure leaves no partially finalized state behind.
type Tx interface {
	GetSubmission(ctx context.Context, programID, periodID int64) (*Submission, error)
	UpsertSubmission(ctx context.Context, sub *Submission) (int64, error)
	ListOtherDrafts(ctx context.Context, programID, excludeSubmissionID int64) ([]Submission, error)
	MarkFinal(ctx context.Context, submissionID int64, submittedBy string, submittedAt time.Time) error
	MarkDeleted(ctx context.Context, submissionID int64) error
	InsertProgram(ctx context.Context, program *Program) (int64, error)
	InsertAuditLog(ctx context.Context, entry AuditLogEntry) (int64, error)
}
