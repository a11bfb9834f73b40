package auth

import (
	"context"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tenants resolves branches by their URL slug
type Tenants interface {
	repository.Repository[*Tenant]

	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	GetBySlugTx(ctx context.Context, tx bun.IDB, slug string) (*Tenant, error)
}

type tenants struct {
	repository.Repository[*Tenant]
	db *bun.DB
}

var (
	_ Tenants     = (*tenants)(nil)
	_ TenantStore = (*tenants)(nil)
)

func NewTenantsRepository(db *bun.DB) Tenants {
	repo := repository.NewRepository[*Tenant](db, repository.ModelHandlers[*Tenant]{
		NewRecord: func() *Tenant { return &Tenant{} },
		GetID: func(t *Tenant) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Tenant, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "slug"
		},
	})

	return &tenants{
		Repository: repo,
		db:         db,
	}
}

func (a *tenants) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return a.GetBySlugTx(ctx, a.db, slug)
}

func (a *tenants) GetBySlugTx(ctx context.Context, tx bun.IDB, slug string) (*Tenant, error) {
	record := &Tenant{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.slug = ?", strings.ToLower(strings.TrimSpace(slug))).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"slug": slug,
				})
		}
		return nil, err
	}

	return record, nil
}
