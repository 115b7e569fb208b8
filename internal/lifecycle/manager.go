// File path: internal/lifecycle/manager.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civicworks/progressd/internal/audit"
	"github.com/civicworks/progressd/internal/authz"
	"github.com/civicworks/progressd/internal/common"
	"github.com/civicworks/progressd/internal/common/telemetry"
	"github.com/civicworks/progressd/internal/report"
)

// Manager owns the creation, autosave, and finalize transitions of program
// submissions. Every mutation runs inside one store transaction together
// with its audit writes.
type Manager struct {
	store    report.Store
	resolver *authz.Resolver
	recorder *audit.Recorder
	now      func() time.Time
}

// NewManager constructs a Manager over the given collaborators.
func NewManager(store report.Store, resolver *authz.Resolver, recorder *audit.Recorder) *Manager {
	return &Manager{store: store, resolver: resolver, recorder: recorder, now: time.Now}
}

// WithClock overrides the manager's clock.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// CreateProgram registers a new program as an empty vessel: no submission
// rows exist until a period is reported against. The creation is audited as
// a pure create (empty before-image).
func (m *Manager) CreateProgram(ctx context.Context, name, agencyID, initiativeID string, actor report.Actor) (*report.Program, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, report.Invalid("name", "required")
	}
	if strings.TrimSpace(agencyID) == "" {
		return nil, report.Invalid("agency_id", "required")
	}
	program := &report.Program{
		Name:         name,
		AgencyID:     strings.TrimSpace(agencyID),
		InitiativeID: strings.TrimSpace(initiativeID),
	}
	err := m.store.RunInTx(ctx, func(tx report.Tx) error {
		id, err := tx.InsertProgram(ctx, program)
		if err != nil {
			return err
		}
		program.ID = id
		after := report.NewFieldMap()
		after.Set("name", report.String(program.Name))
		after.Set("agency_id", report.String(program.AgencyID))
		if program.InitiativeID != "" {
			after.Set("initiative_id", report.String(program.InitiativeID))
		}
		_, err = m.recorder.Record(ctx, tx, audit.Mutation{
			Operation:  report.OpCreate,
			EntityType: report.EntityProgram,
			EntityID:   id,
			Before:     report.NewFieldMap(),
			After:      after,
			Actor:      actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	common.Logger().Info("lifecycle: program created", "program_id", program.ID, "agency", program.AgencyID, "actor", actor.UserID)
	return program, nil
}

// CreateDraft upserts the draft submission for (program, period). It is the
// same idempotent operation as AutoSave; both entry points converge on one
// live row per pair.
func (m *Manager) CreateDraft(ctx context.Context, programID, periodID int64, payload *report.FieldMap, actor report.Actor) (*report.Submission, error) {
	return m.saveDraft(ctx, programID, periodID, payload, actor)
}

// AutoSave upserts the draft submission for (program, period). Saving the
// same payload twice leaves exactly one live row whose content equals the
// payload, with no duplicate audit noise.
func (m *Manager) AutoSave(ctx context.Context, programID, periodID int64, payload *report.FieldMap, actor report.Actor) (*report.Submission, error) {
	return m.saveDraft(ctx, programID, periodID, payload, actor)
}

func (m *Manager) saveDraft(ctx context.Context, programID, periodID int64, payload *report.FieldMap, actor report.Actor) (*report.Submission, error) {
	if err := m.checkReferences(ctx, programID, periodID, payload); err != nil {
		return nil, err
	}
	if err := m.requireEdit(ctx, actor, programID); err != nil {
		return nil, err
	}
	var saved *report.Submission
	err := m.store.RunInTx(ctx, func(tx report.Tx) error {
		existing, err := txSubmission(ctx, tx, programID, periodID)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		if existing == nil {
			sub := &report.Submission{
				ProgramID:   programID,
				PeriodID:    periodID,
				IsDraft:     true,
				Content:     payload.Clone(),
				SubmittedBy: actor.UserID,
				SubmittedAt: now,
			}
			id, err := tx.UpsertSubmission(ctx, sub)
			if err != nil {
				return err
			}
			sub.ID = id
			saved = sub
			_, err = m.recorder.Record(ctx, tx, audit.Mutation{
				Operation:  report.OpCreate,
				EntityType: report.EntitySubmission,
				EntityID:   id,
				Before:     report.NewFieldMap(),
				After:      snapshot(sub),
				Actor:      actor,
			})
			return err
		}
		if existing.Content.Equal(payload) {
			// Idempotent re-save: nothing changed, nothing written.
			saved = existing
			return nil
		}
		before := snapshot(existing)
		updated := *existing
		updated.Content = payload.Clone()
		updated.SubmittedBy = actor.UserID
		updated.SubmittedAt = now
		if _, err := tx.UpsertSubmission(ctx, &updated); err != nil {
			return err
		}
		saved = &updated
		_, err = m.recorder.Record(ctx, tx, audit.Mutation{
			Operation:  report.OpUpdate,
			EntityType: report.EntitySubmission,
			EntityID:   existing.ID,
			Before:     before,
			After:      snapshot(&updated),
			Actor:      actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	telemetry.RecordSubmissionWrite()
	return saved, nil
}

// Finalize marks the (program, period) submission as submitted and, in the
// same transaction, finalizes every other live draft submission of the
// program without touching their content. Each row touched produces its own
// audit entry inside that transaction.
func (m *Manager) Finalize(ctx context.Context, programID, periodID int64, payload *report.FieldMap, actor report.Actor) (*report.Submission, error) {
	if err := m.checkReferences(ctx, programID, periodID, payload); err != nil {
		return nil, err
	}
	if err := m.requireEdit(ctx, actor, programID); err != nil {
		return nil, err
	}
	var finalized *report.Submission
	cascaded := 0
	err := m.store.RunInTx(ctx, func(tx report.Tx) error {
		existing, err := txSubmission(ctx, tx, programID, periodID)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		sub := &report.Submission{
			ProgramID:   programID,
			PeriodID:    periodID,
			IsDraft:     false,
			Content:     payload.Clone(),
			SubmittedBy: actor.UserID,
			SubmittedAt: now,
		}
		before := report.NewFieldMap()
		operation := report.OpCreate
		if existing != nil {
			sub.ID = existing.ID
			before = snapshot(existing)
			operation = report.OpUpdate
		}
		id, err := tx.UpsertSubmission(ctx, sub)
		if err != nil {
			return err
		}
		sub.ID = id
		finalized = sub
		if _, err := m.recorder.Record(ctx, tx, audit.Mutation{
			Operation:  operation,
			EntityType: report.EntitySubmission,
			EntityID:   id,
			Before:     before,
			After:      snapshot(sub),
			Actor:      actor,
		}); err != nil {
			return err
		}

		// Cascading finalization: any other period still drafted becomes
		// visible in period-spanning views regardless of submission order.
		drafts, err := tx.ListOtherDrafts(ctx, programID, id)
		if err != nil {
			return err
		}
		for _, draft := range drafts {
			draft := draft
			preImage := snapshot(&draft)
			if err := tx.MarkFinal(ctx, draft.ID, actor.UserID, now); err != nil {
				return err
			}
			draft.IsDraft = false
			draft.SubmittedBy = actor.UserID
			draft.SubmittedAt = now
			if _, err := m.recorder.Record(ctx, tx, audit.Mutation{
				Operation:  report.OpUpdate,
				EntityType: report.EntitySubmission,
				EntityID:   draft.ID,
				Before:     preImage,
				After:      snapshot(&draft),
				Actor:      actor,
			}); err != nil {
				return err
			}
			cascaded++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.RecordSubmissionWrite()
	common.Logger().Info("lifecycle: submission finalized",
		"program_id", programID, "period_id", periodID, "cascaded_drafts", cascaded, "actor", actor.UserID)
	return finalized, nil
}

// Delete soft-deletes the live submission for (program, period). The row is
// never hard-deleted; the flag flip is audited as a delete operation with
// the full pre-image.
func (m *Manager) Delete(ctx context.Context, programID, periodID int64, actor report.Actor) error {
	if err := m.checkReferences(ctx, programID, periodID, report.NewFieldMap()); err != nil {
		return err
	}
	if err := m.requireEdit(ctx, actor, programID); err != nil {
		return err
	}
	return m.store.RunInTx(ctx, func(tx report.Tx) error {
		existing, err := txSubmission(ctx, tx, programID, periodID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("submission for program %d period %d: %w", programID, periodID, report.ErrNotFound)
		}
		if err := tx.MarkDeleted(ctx, existing.ID); err != nil {
			return err
		}
		_, err = m.recorder.Record(ctx, tx, audit.Mutation{
			Operation:  report.OpDelete,
			EntityType: report.EntitySubmission,
			EntityID:   existing.ID,
			Before:     snapshot(existing),
			After:      report.NewFieldMap(),
			Actor:      actor,
		})
		return err
	})
}

// GetSubmission returns the live submission for (program, period) with
// legacy targets expanded to the canonical discrete list.
func (m *Manager) GetSubmission(ctx context.Context, programID, periodID int64) (*report.Submission, []report.Target, error) {
	sub, err := m.store.GetSubmission(ctx, programID, periodID)
	if err != nil {
		return nil, nil, err
	}
	return sub, TargetsFromContent(sub.Content), nil
}

// ListSubmissions returns all live submissions of a program.
func (m *Manager) ListSubmissions(ctx context.Context, programID int64) ([]report.Submission, error) {
	if _, err := m.store.GetProgram(ctx, programID); err != nil {
		return nil, err
	}
	return m.store.ListSubmissions(ctx, programID)
}

func (m *Manager) checkReferences(ctx context.Context, programID, periodID int64, payload *report.FieldMap) error {
	if programID <= 0 {
		return report.Invalid("program_id", "required")
	}
	if periodID <= 0 {
		return report.Invalid("period_id", "required")
	}
	if payload == nil {
		return report.Invalid("payload", "required")
	}
	if _, err := m.store.GetProgram(ctx, programID); err != nil {
		return err
	}
	if _, err := m.store.GetPeriod(ctx, periodID); err != nil {
		return err
	}
	return nil
}

func (m *Manager) requireEdit(ctx context.Context, actor report.Actor, programID int64) error {
	decision, err := m.resolver.Resolve(ctx, actor, programID)
	if err != nil {
		return fmt.Errorf("resolve role: %w", err)
	}
	if !decision.CanEdit {
		return fmt.Errorf("actor %s on program %d: %w", actor.UserID, programID, report.ErrPermissionDenied)
	}
	return nil
}

func txSubmission(ctx context.Context, tx report.Tx, programID, periodID int64) (*report.Submission, error) {
	sub, err := tx.GetSubmission(ctx, programID, periodID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, report.ErrNotFound)
}

// snapshot builds the audited pre/post image of a submission: its content
// fields plus the lifecycle columns that cascading finalization flips.
func snapshot(sub *report.Submission) *report.FieldMap {
	image := report.NewFieldMap()
	if sub == nil {
		return image
	}
	if sub.Content != nil {
		for _, key := range sub.Content.Keys() {
			value, _ := sub.Content.Get(key)
			image.Set(key, value)
		}
	}
	image.Set("is_draft", report.Bool(sub.IsDraft))
	if sub.SubmittedBy != "" {
		image.Set("submitted_by", report.String(sub.SubmittedBy))
	}
	if !sub.SubmittedAt.IsZero() {
		image.Set("submitted_at", report.String(sub.SubmittedAt.UTC().Format(time.RFC3339)))
	}
	return image
}
