// File path: internal/sqlite/store_test.go
package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/civicworks/progressd/internal/report"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "reporting.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProgram(t *testing.T, store *Store, name string) int64 {
	t.Helper()
	var programID int64
	err := store.RunInTx(context.Background(), func(tx report.Tx) error {
		id, err := tx.InsertProgram(context.Background(), &report.Program{Name: name, AgencyID: "agency-a"})
		programID = id
		return err
	})
	if err != nil {
		t.Fatalf("insert program: %v", err)
	}
	return programID
}

func seedPeriod(t *testing.T, store *Store, number int) int64 {
	t.Helper()
	id, err := store.InsertPeriod(context.Background(), &report.ReportingPeriod{
		PeriodType: "quarterly", PeriodNumber: number, Year: 2026, IsOpen: true,
	})
	if err != nil {
		t.Fatalf("insert period: %v", err)
	}
	return id
}

func testContent(t *testing.T, raw string) *report.FieldMap {
	t.Helper()
	fm, err := report.ParseFieldMap(raw)
	if err != nil {
		t.Fatalf("parse content: %v", err)
	}
	return fm
}

func TestOpenMigratesAndConfiguresConnection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var journalMode string
	if err := store.DB().GetContext(ctx, &journalMode, `PRAGMA journal_mode`); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Fatalf("expected wal journal mode, got %q", journalMode)
	}
	var foreignKeys int
	if err := store.DB().GetContext(ctx, &foreignKeys, `PRAGMA foreign_keys`); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("expected foreign keys enabled, got %d", foreignKeys)
	}

	var tables int
	if err := store.DB().GetContext(ctx, &tables, `SELECT COUNT(*) FROM sqlite_master
                WHERE type = 'table' AND name IN
                ('programs', 'reporting_periods', 'program_submissions',
                 'program_agency_assignments', 'user_restrictions',
                 'audit_logs', 'audit_field_changes')`); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 7 {
		t.Fatalf("expected 7 migrated tables, got %d", tables)
	}
}

func TestUpsertSubmissionConvergesOnOneLiveRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	programID := seedProgram(t, store, "Broadband Expansion")
	periodID := seedPeriod(t, store, 1)

	var firstID, secondID int64
	err := store.RunInTx(ctx, func(tx report.Tx) error {
		id, err := tx.UpsertSubmission(ctx, &report.Submission{
			ProgramID: programID, PeriodID: periodID, IsDraft: true,
			Content: testContent(t, `{"rating": "on_track"}`), SubmittedBy: "u1",
			SubmittedAt: time.Now().UTC(),
		})
		firstID = id
		return err
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	err = store.RunInTx(ctx, func(tx report.Tx) error {
		id, err := tx.UpsertSubmission(ctx, &report.Submission{
			ProgramID: programID, PeriodID: periodID, IsDraft: true,
			Content: testContent(t, `{"rating": "delayed"}`), SubmittedBy: "u2",
			SubmittedAt: time.Now().UTC(),
		})
		secondID = id
		return err
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if firstID != secondID {
		t.Fatalf("upserts must converge on one row, got %d and %d", firstID, secondID)
	}
	sub, err := store.GetSubmission(ctx, programID, periodID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	value, _ := sub.Content.Get("rating")
	if value.StringVal() != "delayed" || sub.SubmittedBy != "u2" {
		t.Fatalf("expected second write to win: %+v", sub)
	}
}

func TestSoftDeleteHidesRowAndFreesIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	programID := seedProgram(t, store, "Broadband Expansion")
	periodID := seedPeriod(t, store, 1)

	var originalID int64
	err := store.RunInTx(ctx, func(tx report.Tx) error {
		id, err := tx.UpsertSubmission(ctx, &report.Submission{
			ProgramID: programID, PeriodID: periodID, IsDraft: true,
			Content: testContent(t, `{"rating": "on_track"}`),
		})
		if err != nil {
			return err
		}
		originalID = id
		return tx.MarkDeleted(ctx, id)
	})
	if err != nil {
		t.Fatalf("create and delete: %v", err)
	}
	if _, err := store.GetSubmission(ctx, programID, periodID); !errors.Is(err, report.ErrNotFound) {
		t.Fatalf("expected not found for deleted row, got %v", err)
	}

	var newID int64
	err = store.RunInTx(ctx, func(tx report.Tx) error {
		id, err := tx.UpsertSubmission(ctx, &report.Submission{
			ProgramID: programID, PeriodID: periodID, IsDraft: true,
			Content: testContent(t, `{"rating": "restarted"}`),
		})
		newID = id
		return err
	})
	if err != nil {
		t.Fatalf("insert after soft delete: %v", err)
	}
	if newID == originalID {
		t.Fatalf("expected fresh row after soft delete")
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	programID := seedProgram(t, store, "Broadband Expansion")
	periodID := seedPeriod(t, store, 1)

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(tx report.Tx) error {
		if _, err := tx.UpsertSubmission(ctx, &report.Submission{
			ProgramID: programID, PeriodID: periodID, IsDraft: true,
			Content: testContent(t, `{"rating": "on_track"}`),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if _, err := store.GetSubmission(ctx, programID, periodID); !errors.Is(err, report.ErrNotFound) {
		t.Fatalf("rolled-back write must not be visible, got %v", err)
	}
}

func TestAuditTrailRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	programID := seedProgram(t, store, "Broadband Expansion")
	periodID := seedPeriod(t, store, 1)

	var submissionID int64
	created := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	err := store.RunInTx(ctx, func(tx report.Tx) error {
		id, err := tx.UpsertSubmission(ctx, &report.Submission{
			ProgramID: programID, PeriodID: periodID, IsDraft: true,
			Content: testContent(t, `{"rating": "on_track"}`),
		})
		if err != nil {
			return err
		}
		submissionID = id
		_, err = tx.InsertAuditLog(ctx, report.AuditLogEntry{
			EventID:     "evt-1",
			Operation:   report.OpCreate,
			EntityType:  report.EntitySubmission,
			EntityID:    id,
			ActorUserID: "u1",
			CreatedAt:   created,
			Changes: []report.FieldChange{
				{FieldName: "rating", FieldType: report.FieldText, ChangeType: report.ChangeAdded, NewValue: "on_track"},
			},
		})
		return err
	})
	if err != nil {
		t.Fatalf("write audit entry: %v", err)
	}

	entries, err := store.AuditTrail(ctx, report.EntitySubmission, submissionID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.EventID != "evt-1" || entry.Operation != report.OpCreate || entry.ActorUserID != "u1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if len(entry.Changes) != 1 || entry.Changes[0].NewValue != "on_track" {
		t.Fatalf("unexpected changes: %+v", entry.Changes)
	}

	events, err := store.SubmissionFieldChanges(ctx, programID, "rating")
	if err != nil {
		t.Fatalf("field changes: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 field change event, got %d", len(events))
	}
	if events[0].SubmissionID != submissionID || events[0].NewValue != "on_track" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestProgramAuditTrailSpansSubmissions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	programID := seedProgram(t, store, "Broadband Expansion")
	periodID := seedPeriod(t, store, 1)

	err := store.RunInTx(ctx, func(tx report.Tx) error {
		if _, err := tx.InsertAuditLog(ctx, report.AuditLogEntry{
			EventID: "evt-program", Operation: report.OpCreate,
			EntityType: report.EntityProgram, EntityID: programID,
		}); err != nil {
			return err
		}
		id, err := tx.UpsertSubmission(ctx, &report.Submission{
			ProgramID: programID, PeriodID: periodID, IsDraft: true,
			Content: testContent(t, `{"rating": "on_track"}`),
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertAuditLog(ctx, report.AuditLogEntry{
			EventID: "evt-submission", Operation: report.OpCreate,
			EntityType: report.EntitySubmission, EntityID: id,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed audit entries: %v", err)
	}

	entries, err := store.ProgramAuditTrail(ctx, programID)
	if err != nil {
		t.Fatalf("program audit trail: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected program and submission entries, got %d", len(entries))
	}
}

func TestGetProgramMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetProgram(context.Background(), 404); !errors.Is(err, report.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInsertPeriodIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	first := seedPeriod(t, store, 1)
	second := seedPeriod(t, store, 1)
	if first != second {
		t.Fatalf("conflicting period insert must return the existing id, got %d and %d", first, second)
	}
}
