// File path: internal/history/projector.go
package history

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/civicworks/progressd/internal/common/telemetry"
	"github.com/civicworks/progressd/internal/lifecycle"
	"github.com/civicworks/progressd/internal/report"
)

// Entry is one observed value of a field at a point in time.
type Entry struct {
	Value        string    `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
	SubmissionID int64     `json:"submission_id"`
	IsDraft      bool      `json:"is_draft"`
}

// Projector reconstructs the chronological value history of one field across
// a program's submissions. It is read-only and uncached: every call rescans
// the program's submissions and audit records, which stays cheap under the
// per-program submission bound.
type Projector struct {
	store report.Store
}

// NewProjector constructs a Projector over the given store.
func NewProjector(store report.Store) *Projector {
	return &Projector{store: store}
}

// FieldHistory returns every recorded value of fieldName across the
// program's submissions, most recent first. Recorded audit changes supply
// the historical values; a submission's current content supplies its value
// when no audit record covers it (legacy rows predating the audit trail).
// Target-shaped fields are expanded to the canonical discrete list before
// the value is read.
func (p *Projector) FieldHistory(ctx context.Context, programID int64, fieldName string) ([]Entry, error) {
	fieldName = strings.TrimSpace(fieldName)
	if programID <= 0 {
		return nil, report.Invalid("program_id", "required")
	}
	if fieldName == "" {
		return nil, report.Invalid("field", "required")
	}
	if _, err := p.store.GetProgram(ctx, programID); err != nil {
		return nil, err
	}
	telemetry.RecordHistoryQuery()
	submissions, err := p.store.ListSubmissions(ctx, programID)
	if err != nil {
		return nil, err
	}
	changes, err := p.store.SubmissionFieldChanges(ctx, programID, fieldName)
	if err != nil {
		return nil, err
	}

	draftByID := make(map[int64]bool, len(submissions))
	for _, sub := range submissions {
		draftByID[sub.ID] = sub.IsDraft
	}

	entries := []Entry{}
	covered := make(map[int64]struct{})
	for _, change := range changes {
		if change.ChangeType == report.ChangeRemoved {
			covered[change.SubmissionID] = struct{}{}
			continue
		}
		entries = append(entries, Entry{
			Value:        change.NewValue,
			Timestamp:    change.CreatedAt,
			SubmissionID: change.SubmissionID,
			IsDraft:      draftByID[change.SubmissionID],
		})
		covered[change.SubmissionID] = struct{}{}
	}
	for _, sub := range submissions {
		if _, ok := covered[sub.ID]; ok {
			continue
		}
		value, ok := currentValue(&sub, fieldName)
		if !ok {
			continue
		}
		timestamp := sub.SubmittedAt
		if timestamp.IsZero() {
			timestamp = sub.UpdatedAt
		}
		entries = append(entries, Entry{
			Value:        value,
			Timestamp:    timestamp,
			SubmissionID: sub.ID,
			IsDraft:      sub.IsDraft,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].SubmissionID > entries[j].SubmissionID
	})
	return entries, nil
}

func currentValue(sub *report.Submission, fieldName string) (string, bool) {
	if fieldName == "targets" {
		targets := lifecycle.TargetsFromContent(sub.Content)
		if len(targets) == 0 {
			return "", false
		}
		raw, err := json.Marshal(targets)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
	value, ok := sub.Content.Get(fieldName)
	if !ok {
		return "", false
	}
	return value.Text(), true
}
