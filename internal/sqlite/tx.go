// File path: internal/sqlite/tx.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicworks/progressd/internal/report"
)

// RunInTx executes fn inside a single transaction. A non-nil error from fn
// rolls everything back, so a submission mutation and its audit trail are
// never observably inconsistent.
func (s *Store) RunInTx(ctx context.Context, fn func(report.Tx) error) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// storeTx implements report.Tx over one open sqlx transaction.
type storeTx struct {
	tx *sqlx.Tx
}

func (t *storeTx) GetSubmission(ctx context.Context, programID, periodID int64) (*report.Submission, error) {
	return getSubmission(ctx, t.tx, programID, periodID)
}

func getSubmission(ctx context.Context, q sqlx.QueryerContext, programID, periodID int64) (*report.Submission, error) {
	var row submissionRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM program_submissions
                WHERE program_id = ? AND period_id = ? AND is_deleted = 0`, programID, periodID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission for program %d period %d: %w", programID, periodID, report.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select submission: %w", err)
	}
	return row.toDomain()
}

// UpsertSubmission inserts or updates the live row for (program, period).
// The partial unique index on live rows makes two racing save paths converge
// on one row instead of inserting duplicates.
func (t *storeTx) UpsertSubmission(ctx context.Context, sub *report.Submission) (int64, error) {
	content, err := sub.Content.Serialize()
	if err != nil {
		return 0, err
	}
	var submittedAt interface{}
	if !sub.SubmittedAt.IsZero() {
		submittedAt = sub.SubmittedAt.UTC()
	}
	if _, err := t.tx.ExecContext(ctx, `
INSERT INTO program_submissions(program_id, period_id, is_draft, content, submitted_by, submitted_at, updated_at)
VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, CURRENT_TIMESTAMP)
ON CONFLICT(program_id, period_id) WHERE is_deleted = 0 DO UPDATE SET
        is_draft=excluded.is_draft,
        content=excluded.content,
        submitted_by=excluded.submitted_by,
        submitted_at=excluded.submitted_at,
        updated_at=CURRENT_TIMESTAMP`,
		sub.ProgramID, sub.PeriodID, sub.IsDraft, content, sub.SubmittedBy, submittedAt); err != nil {
		return 0, fmt.Errorf("upsert submission: %w", err)
	}
	var id int64
	if err := t.tx.GetContext(ctx, &id, `SELECT id FROM program_submissions
                WHERE program_id = ? AND period_id = ? AND is_deleted = 0`, sub.ProgramID, sub.PeriodID); err != nil {
		return 0, fmt.Errorf("lookup submission id: %w", err)
	}
	return id, nil
}

func (t *storeTx) ListOtherDrafts(ctx context.Context, programID, excludeSubmissionID int64) ([]report.Submission, error) {
	rows := []submissionRow{}
	if err := t.tx.SelectContext(ctx, &rows, `SELECT * FROM program_submissions
                WHERE program_id = ? AND id != ? AND is_draft = 1 AND is_deleted = 0
                ORDER BY period_id`, programID, excludeSubmissionID); err != nil {
		return nil, fmt.Errorf("select draft submissions: %w", err)
	}
	out := make([]report.Submission, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, nil
}

// MarkFinal flips a draft to submitted without touching its content.
func (t *storeTx) MarkFinal(ctx context.Context, submissionID int64, submittedBy string, submittedAt time.Time) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE program_submissions
                SET is_draft = 0, submitted_by = ?, submitted_at = ?, updated_at = CURRENT_TIMESTAMP
                WHERE id = ?`, submittedBy, submittedAt.UTC(), submissionID); err != nil {
		return fmt.Errorf("finalize submission %d: %w", submissionID, err)
	}
	return nil
}

// MarkDeleted soft-deletes a submission; rows are never removed.
func (t *storeTx) MarkDeleted(ctx context.Context, submissionID int64) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE program_submissions
                SET is_deleted = 1, updated_at = CURRENT_TIMESTAMP
                WHERE id = ?`, submissionID); err != nil {
		return fmt.Errorf("soft delete submission %d: %w", submissionID, err)
	}
	return nil
}

func (t *storeTx) InsertProgram(ctx context.Context, program *report.Program) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO programs(name, agency_id, initiative_id)
                VALUES (?, ?, NULLIF(?, ''))`,
		program.Name, program.AgencyID, program.InitiativeID)
	if err != nil {
		return 0, fmt.Errorf("insert program: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("program id: %w", err)
	}
	return id, nil
}

// InsertAuditLog persists one audit entry and its field changes.
func (t *storeTx) InsertAuditLog(ctx context.Context, entry report.AuditLogEntry) (int64, error) {
	var createdAt interface{}
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt.UTC()
	}
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO audit_logs(event_id, operation, entity_type, entity_id, actor_user_id, created_at)
VALUES (?, ?, ?, ?, NULLIF(?, ''), COALESCE(?, CURRENT_TIMESTAMP))`,
		entry.EventID, string(entry.Operation), entry.EntityType, entry.EntityID, entry.ActorUserID, createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert audit log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("audit log id: %w", err)
	}
	for _, change := range entry.Changes {
		if _, err := t.tx.ExecContext(ctx, `
INSERT INTO audit_field_changes(audit_log_id, field_name, field_type, change_type, old_value, new_value)
VALUES (?, ?, ?, ?, ?, ?)`,
			id, change.FieldName, string(change.FieldType), string(change.ChangeType),
			change.OldValue, change.NewValue); err != nil {
			return 0, fmt.Errorf("insert field change %s: %w", change.FieldName, err)
		}
	}
	return id, nil
}
