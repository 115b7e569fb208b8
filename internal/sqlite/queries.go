// File path: internal/sqlite/queries.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/civicworks/progressd/internal/report"
)

// GetProgram retrieves a live program by id.
func (s *Store) GetProgram(ctx context.Context, programID int64) (*report.Program, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var row programRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM programs WHERE id = ? AND is_deleted = 0`, programID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("program %d: %w", programID, report.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select program: %w", err)
	}
	return row.toDomain(), nil
}

// GetPeriod retrieves a reporting period by id.
func (s *Store) GetPeriod(ctx context.Context, periodID int64) (*report.ReportingPeriod, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var period report.ReportingPeriod
	err := s.db.GetContext(ctx, &period, `SELECT * FROM reporting_periods WHERE id = ?`, periodID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reporting period %d: %w", periodID, report.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select reporting period: %w", err)
	}
	return &period, nil
}

// GetSubmission returns the live submission for (program, period).
func (s *Store) GetSubmission(ctx context.Context, programID, periodID int64) (*report.Submission, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return getSubmission(ctx, s.db, programID, periodID)
}

// ListSubmissions returns all live submissions of a program ordered by
// period.
func (s *Store) ListSubmissions(ctx context.Context, programID int64) ([]report.Submission, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []submissionRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM program_submissions
                WHERE program_id = ? AND is_deleted = 0 ORDER BY period_id`, programID); err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
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

// AssignmentsForAgency returns the active assignment rows linking an agency
// to a program.
func (s *Store) AssignmentsForAgency(ctx context.Context, programID int64, agencyID string) ([]report.AgencyAssignment, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	assignments := []report.AgencyAssignment{}
	if err := s.db.SelectContext(ctx, &assignments, `SELECT * FROM program_agency_assignments
                WHERE program_id = ? AND agency_id = ? AND is_active = 1`, programID, agencyID); err != nil {
		return nil, fmt.Errorf("select assignments: %w", err)
	}
	return assignments, nil
}

// RestrictionsForUser returns the active restrictions applying to a user on
// a program, including global (program-less) rows.
func (s *Store) RestrictionsForUser(ctx context.Context, userID string, programID int64) ([]report.UserRestriction, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []restrictionRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM user_restrictions
                WHERE user_id = ? AND is_active = 1 AND (program_id IS NULL OR program_id = ?)`, userID, programID); err != nil {
		return nil, fmt.Errorf("select restrictions: %w", err)
	}
	out := make([]report.UserRestriction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// AuditTrail returns the audit entries for one entity, most recent first,
// with their field changes attached.
func (s *Store) AuditTrail(ctx context.Context, entityType string, entityID int64) ([]report.AuditLogEntry, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []auditLogRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM audit_logs
                WHERE entity_type = ? AND entity_id = ? ORDER BY created_at DESC, id DESC`, entityType, entityID); err != nil {
		return nil, fmt.Errorf("select audit logs: %w", err)
	}
	return s.attachFieldChanges(ctx, rows)
}

// ProgramAuditTrail returns the audit entries for a program and all of its
// submissions, most recent first.
func (s *Store) ProgramAuditTrail(ctx context.Context, programID int64) ([]report.AuditLogEntry, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []auditLogRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM audit_logs
                WHERE (entity_type = 'program' AND entity_id = ?)
                   OR (entity_type = 'submission' AND entity_id IN
                        (SELECT id FROM program_submissions WHERE program_id = ?))
                ORDER BY created_at DESC, id DESC`, programID, programID); err != nil {
		return nil, fmt.Errorf("select program audit logs: %w", err)
	}
	return s.attachFieldChanges(ctx, rows)
}

func (s *Store) attachFieldChanges(ctx context.Context, rows []auditLogRow) ([]report.AuditLogEntry, error) {
	out := make([]report.AuditLogEntry, 0, len(rows))
	for _, row := range rows {
		entry := row.toDomain()
		changes := []fieldChangeRow{}
		if err := s.db.SelectContext(ctx, &changes, `SELECT * FROM audit_field_changes
                        WHERE audit_log_id = ? ORDER BY id`, row.ID); err != nil {
			return nil, fmt.Errorf("select field changes: %w", err)
		}
		for _, change := range changes {
			entry.Changes = append(entry.Changes, change.toDomain())
		}
		out = append(out, entry)
	}
	return out, nil
}

// SubmissionFieldChanges returns every recorded change of one field across a
// program's submissions, oldest first.
func (s *Store) SubmissionFieldChanges(ctx context.Context, programID int64, fieldName string) ([]report.FieldChangeEvent, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []fieldHistoryRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM submission_field_history
                WHERE program_id = ? AND field_name = ? ORDER BY created_at, entity_id`, programID, fieldName); err != nil {
		return nil, fmt.Errorf("select field history: %w", err)
	}
	out := make([]report.FieldChangeEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// InsertPeriod registers a reporting period. Periods are immutable reference
// data; conflicts on (type, number, year) leave the existing row untouched.
func (s *Store) InsertPeriod(ctx context.Context, period *report.ReportingPeriod) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO reporting_periods(period_type, period_number, year, is_open)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(period_type, period_number, year) DO NOTHING`,
		period.PeriodType, period.PeriodNumber, period.Year, period.IsOpen); err != nil {
		return 0, fmt.Errorf("insert reporting period: %w", err)
	}
	var id int64
	if err := s.db.GetContext(ctx, &id, `SELECT id FROM reporting_periods
                WHERE period_type = ? AND period_number = ? AND year = ?`,
		period.PeriodType, period.PeriodNumber, period.Year); err != nil {
		return 0, fmt.Errorf("lookup reporting period id: %w", err)
	}
	period.ID = id
	return id, nil
}

// SaveAssignment records an agency's role on a program.
func (s *Store) SaveAssignment(ctx context.Context, assignment *report.AgencyAssignment) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO program_agency_assignments(program_id, agency_id, role, is_active)
                VALUES (?, ?, ?, ?)`,
		assignment.ProgramID, assignment.AgencyID, string(assignment.Role), assignment.IsActive)
	if err != nil {
		return 0, fmt.Errorf("insert assignment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("assignment id: %w", err)
	}
	assignment.ID = id
	return id, nil
}

// SaveRestriction records a per-user role cap.
func (s *Store) SaveRestriction(ctx context.Context, restriction *report.UserRestriction) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	var programID interface{}
	if restriction.ProgramID != nil {
		programID = *restriction.ProgramID
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO user_restrictions(user_id, program_id, max_role, is_active)
                VALUES (?, ?, ?, ?)`,
		restriction.UserID, programID, string(restriction.MaxRole), restriction.IsActive)
	if err != nil {
		return 0, fmt.Errorf("insert restriction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("restriction id: %w", err)
	}
	restriction.ID = id
	return id, nil
}
