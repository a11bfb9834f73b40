package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleAssignmentStore persists which roles a principal holds and where.
type RoleAssignmentStore interface {
	Save(ctx context.Context, assignment *RoleAssignment) (*RoleAssignment, error)
	SaveTx(ctx context.Context, tx bun.IDB, assignment *RoleAssignment) (*RoleAssignment, error)
	FindForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*RoleAssignment, error)
}

// RoleRegistry is the single source of truth for role grants. Roles come
// from the closed set in roles.go; there is no dynamic permission store.
type RoleRegistry struct {
	store  RoleAssignmentStore
	logger Logger
	sink   ActivitySink
}

// NewRoleRegistry returns a registry backed by the given store
func NewRoleRegistry(store RoleAssignmentStore) *RoleRegistry {
	return &RoleRegistry{
		store:  store,
		logger: defLogger{},
		sink:   noopActivitySink{},
	}
}

// WithLogger sets the logger
func (r *RoleRegistry) WithLogger(logger Logger) *RoleRegistry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithActivitySink sets the audit sink
func (r *RoleRegistry) WithActivitySink(sink ActivitySink) *RoleRegistry {
	r.sink = normalizeActivitySink(sink)
	return r
}

// Assign grants a role to a principal. Tenant scoped roles require a
// tenant, global roles must not carry one.
func (r *RoleRegistry) Assign(ctx context.Context, principalID uuid.UUID, role Role, tenantID *uuid.UUID) (*RoleAssignment, error) {
	return r.assign(ctx, principalID, role, tenantID, r.store.Save)
}

// AssignTx behaves like Assign inside an existing transaction so the
// grant commits or rolls back with the caller's other writes.
func (r *RoleRegistry) AssignTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID, role Role, tenantID *uuid.UUID) (*RoleAssignment, error) {
	return r.assign(ctx, principalID, role, tenantID, func(ctx context.Context, assignment *RoleAssignment) (*RoleAssignment, error) {
		return r.store.SaveTx(ctx, tx, assignment)
	})
}

func (r *RoleRegistry) assign(ctx context.Context, principalID uuid.UUID, role Role, tenantID *uuid.UUID, save func(context.Context, *RoleAssignment) (*RoleAssignment, error)) (*RoleAssignment, error) {
	if !role.IsValid() {
		return nil, ErrInvalidRoleScope.Clone().WithMetadata(map[string]any{
			"role": string(role),
		})
	}

	if role.IsGlobal() && tenantID != nil {
		return nil, ErrInvalidRoleScope.Clone().WithMetadata(map[string]any{
			"role":   string(role),
			"reason": "global role cannot be bound to a tenant",
		})
	}

	if !role.IsGlobal() && tenantID == nil {
		return nil, ErrInvalidRoleScope.Clone().WithMetadata(map[string]any{
			"role":   string(role),
			"reason": "tenant scoped role requires a tenant",
		})
	}

	assignment, err := save(ctx, &RoleAssignment{
		PrincipalID: principalID,
		Role:        role,
		TenantID:    tenantID,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist role assignment")
	}

	event := ActivityEvent{
		EventType:   ActivityEventRoleAssigned,
		Actor:       ActorRef{Type: "system"},
		PrincipalID: principalID.String(),
		Metadata:    map[string]any{"role": string(role)},
	}
	if tenantID != nil {
		event.TenantID = tenantID.String()
	}
	emitActivity(ctx, r.sink, r.logger, event)

	return assignment, nil
}

// Can reports whether the principal holds a role granting the permission
// within the tenant. A global assignment grants across every tenant.
func (r *RoleRegistry) Can(ctx context.Context, principalID uuid.UUID, permission Permission, tenantID uuid.UUID) (bool, error) {
	assignments, err := r.store.FindForPrincipal(ctx, principalID)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load role assignments")
	}

	for _, assignment := range assignments {
		if !assignment.AppliesTo(tenantID) {
			continue
		}
		if assignment.Role.Grants(permission) {
			return true, nil
		}
	}

	return false, nil
}

// ResolveRole returns the highest role the principal holds within the
// tenant, or the empty role when nothing applies. Satisfies RoleResolver.
func (r *RoleRegistry) ResolveRole(ctx context.Context, principalID uuid.UUID, tenantID uuid.UUID) (Role, error) {
	assignments, err := r.store.FindForPrincipal(ctx, principalID)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load role assignments")
	}

	best := Role("")
	for _, assignment := range assignments {
		if !assignment.AppliesTo(tenantID) {
			continue
		}
		candidate := assignment.Role
		if !candidate.IsValid() {
			r.logger.Warn("skipping unknown role in assignment", "role", assignment.Role)
			continue
		}
		if best == "" || candidate.IsAtLeast(best) {
			best = candidate
		}
	}

	return best, nil
}
