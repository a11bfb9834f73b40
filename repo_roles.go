package auth

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleAssignments persists role grants
type RoleAssignments interface {
	repository.Repository[*RoleAssignment]

	Save(ctx context.Context, assignment *RoleAssignment) (*RoleAssignment, error)
	SaveTx(ctx context.Context, tx bun.IDB, assignment *RoleAssignment) (*RoleAssignment, error)
	FindForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*RoleAssignment, error)
	FindForPrincipalTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) ([]*RoleAssignment, error)
}

type roleAssignments struct {
	repository.Repository[*RoleAssignment]
	db *bun.DB
}

var (
	_ RoleAssignments     = (*roleAssignments)(nil)
	_ RoleAssignmentStore = (*roleAssignments)(nil)
)

func NewRoleAssignmentsRepository(db *bun.DB) RoleAssignments {
	repo := repository.NewRepository[*RoleAssignment](db, repository.ModelHandlers[*RoleAssignment]{
		NewRecord: func() *RoleAssignment { return &RoleAssignment{} },
		GetID: func(r *RoleAssignment) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *RoleAssignment, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &roleAssignments{
		Repository: repo,
		db:         db,
	}
}

func (a *roleAssignments) Save(ctx context.Context, assignment *RoleAssignment) (*RoleAssignment, error) {
	return a.SaveTx(ctx, a.db, assignment)
}

func (a *roleAssignments) SaveTx(ctx context.Context, tx bun.IDB, assignment *RoleAssignment) (*RoleAssignment, error) {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}

	// an equivalent grant already on file wins over inserting a duplicate
	existing, err := a.FindForPrincipalTx(ctx, tx, assignment.PrincipalID)
	if err != nil {
		return nil, err
	}
	for _, current := range existing {
		if current.Role != assignment.Role {
			continue
		}
		if sameTenantRef(current.TenantID, assignment.TenantID) {
			return current, nil
		}
	}

	return a.Repository.CreateTx(ctx, tx, assignment)
}

func (a *roleAssignments) FindForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*RoleAssignment, error) {
	return a.FindForPrincipalTx(ctx, a.db, principalID)
}

func (a *roleAssignments) FindForPrincipalTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) ([]*RoleAssignment, error) {
	var records []*RoleAssignment
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.principal_id = ?", principalID.String()).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func sameTenantRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
