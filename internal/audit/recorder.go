// File path: internal/audit/recorder.go
package audit

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/civicworks/progressd/internal/common"
	"github.com/civicworks/progressd/internal/common/telemetry"
	"github.com/civicworks/progressd/internal/report"
)

// Sink persists a computed audit entry together with its field changes.
// report.Tx satisfies it, so a recorder invoked inside a lifecycle
// transaction writes within that transaction's boundary.
type Sink interface {
	InsertAuditLog(ctx context.Context, entry report.AuditLogEntry) (int64, error)
}

// Mutation describes one audited write: the operation, the entity touched,
// and the pre/post field snapshots. A pure create carries an empty Before; a
// pure delete carries an empty After.
type Mutation struct {
	Operation  report.Operation
	EntityType string
	EntityID   int64
	Before     *report.FieldMap
	After      *report.FieldMap
	Actor      report.Actor
}

// Recorder diffs before/after snapshots and persists the structured result.
type Recorder struct {
	now func() time.Time
}

// NewRecorder constructs a Recorder using wall-clock time.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// NewRecorderWithClock constructs a Recorder with an injected clock.
func NewRecorderWithClock(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Record computes the field-level diff for the mutation and writes one audit
// entry through the sink. A persistence failure is returned to the caller,
// never treated as success; whether the primary mutation survives is the
// caller's decision (inside a shared transaction it rolls back with it).
func (r *Recorder) Record(ctx context.Context, sink Sink, m Mutation) (int64, error) {
	if r == nil {
		return 0, fmt.Errorf("audit recorder not initialised")
	}
	if sink == nil {
		return 0, fmt.Errorf("audit sink required")
	}
	switch m.Operation {
	case report.OpCreate, report.OpUpdate, report.OpDelete:
	default:
		return 0, report.Invalid("operation", fmt.Sprintf("unknown operation %q", m.Operation))
	}
	if m.EntityType == "" {
		return 0, report.Invalid("entity_type", "required")
	}
	if m.EntityID <= 0 {
		return 0, report.Invalid("entity_id", "required")
	}
	entry := report.AuditLogEntry{
		EventID:     uuid.NewString(),
		Operation:   m.Operation,
		EntityType:  m.EntityType,
		EntityID:    m.EntityID,
		ActorUserID: m.Actor.UserID,
		CreatedAt:   r.now().UTC(),
		Changes:     Diff(m.Before, m.After),
	}
	id, err := sink.InsertAuditLog(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("persist audit entry: %w", err)
	}
	telemetry.RecordAuditEntry(len(entry.Changes))
	common.Logger().Debug("audit: recorded",
		"operation", m.Operation, "entity", m.EntityType, "entity_id", m.EntityID,
		"changes", len(entry.Changes), "actor", m.Actor.UserID)
	return id, nil
}

// Diff computes the key-union difference between two snapshots. Keys present
// only after are added, only before are removed, present in both with
// unequal values are modified; unchanged keys are skipped. The result keeps
// the before map's key order, with after-only keys appended in their own
// order.
func Diff(before, after *report.FieldMap) []report.FieldChange {
	var changes []report.FieldChange
	seen := make(map[string]struct{})
	appendChange := func(key string) {
		seen[key] = struct{}{}
		oldValue, hadOld := before.Get(key)
		newValue, hasNew := after.Get(key)
		change := report.FieldChange{FieldName: key}
		switch {
		case !hadOld && !hasNew:
			return
		case !hadOld:
			change.ChangeType = report.ChangeAdded
			change.NewValue = newValue.Text()
			change.FieldType = InferFieldType(newValue)
		case !hasNew:
			change.ChangeType = report.ChangeRemoved
			change.OldValue = oldValue.Text()
			change.FieldType = InferFieldType(oldValue)
		default:
			if oldValue.Equal(newValue) {
				return
			}
			change.ChangeType = report.ChangeModified
			change.OldValue = oldValue.Text()
			change.NewValue = newValue.Text()
			change.FieldType = InferFieldType(newValue)
		}
		changes = append(changes, change)
	}
	for _, key := range before.Keys() {
		appendChange(key)
	}
	for _, key := range after.Keys() {
		if _, ok := seen[key]; ok {
			continue
		}
		appendChange(key)
	}
	return changes
}

var isoDatePattern = regexp.MustCompile(
	`^\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?)?$`)

// InferFieldType maps a tagged value onto the audit field-type taxonomy.
// Strings matching an ISO-like date pattern classify as dates; structured
// values classify as json.
func InferFieldType(v report.Value) report.FieldType {
	switch v.Kind() {
	case report.KindNull:
		return report.FieldNull
	case report.KindBool:
		return report.FieldBoolean
	case report.KindInt:
		return report.FieldInteger
	case report.KindFloat:
		return report.FieldFloat
	case report.KindList, report.KindMap:
		return report.FieldJSON
	case report.KindString:
		if isoDatePattern.MatchString(v.StringVal()) {
			return report.FieldDate
		}
		return report.FieldText
	}
	return report.FieldText
}
