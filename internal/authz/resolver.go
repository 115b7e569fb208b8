// File path: internal/authz/resolver.go
package authz

import (
	"context"
	"fmt"

	"github.com/civicworks/progressd/internal/report"
)

// Decision is the resolved permission set for one actor on one program.
type Decision struct {
	EffectiveRole report.Role `json:"effective_role"`
	IsOwner       bool        `json:"is_owner"`
	CanEdit       bool        `json:"can_edit"`
	CanView       bool        `json:"can_view"`
}

// Source supplies the assignment rows the resolver layers together.
type Source interface {
	AssignmentsForAgency(ctx context.Context, programID int64, agencyID string) ([]report.AgencyAssignment, error)
	RestrictionsForUser(ctx context.Context, userID string, programID int64) ([]report.UserRestriction, error)
}

// Resolver computes effective roles from layered assignment data. It holds
// no state beyond its source and is safe to call on every authorization
// check.
type Resolver struct {
	source Source
}

// NewResolver constructs a Resolver over the given assignment source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve computes the actor's effective role on a program. Several active
// assignments for the actor's agency collapse to the most privileged one;
// user restrictions only ever narrow the result. A global admin override
// grants view access but never edit.
func (r *Resolver) Resolve(ctx context.Context, actor report.Actor, programID int64) (Decision, error) {
	if r == nil || r.source == nil {
		return Decision{}, fmt.Errorf("authz resolver not initialised")
	}
	role := report.RoleNone
	if actor.AgencyID != "" {
		assignments, err := r.source.AssignmentsForAgency(ctx, programID, actor.AgencyID)
		if err != nil {
			return Decision{}, fmt.Errorf("load assignments: %w", err)
		}
		for _, assignment := range assignments {
			if !assignment.IsActive || !assignment.Role.Valid() {
				continue
			}
			if assignment.Role.MorePrivileged(role) {
				role = assignment.Role
			}
		}
	}
	if role != report.RoleNone && actor.UserID != "" {
		restrictions, err := r.source.RestrictionsForUser(ctx, actor.UserID, programID)
		if err != nil {
			return Decision{}, fmt.Errorf("load restrictions: %w", err)
		}
		for _, restriction := range restrictions {
			if !restriction.IsActive {
				continue
			}
			// Restrictions narrow, never widen.
			if role.MorePrivileged(restriction.MaxRole) {
				role = restriction.MaxRole
			}
		}
	}
	decision := decisionForRole(role)
	if actor.Admin && !decision.CanView {
		decision.CanView = true
	}
	return decision, nil
}

func decisionForRole(role report.Role) Decision {
	decision := Decision{EffectiveRole: role}
	switch role {
	case report.RoleOwner:
		decision.IsOwner = true
		decision.CanEdit = true
		decision.CanView = true
	case report.RoleEditor:
		decision.CanEdit = true
		decision.CanView = true
	case report.RoleViewer:
		decision.CanView = true
	}
	return decision
}
