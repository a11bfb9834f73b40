package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ProvisionTenantMessage struct {
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	OwnerEmail string `json:"owner_email"`
}

func (e ProvisionTenantMessage) Type() string { return "auth.tenant.provision" }

func (e ProvisionTenantMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Slug, validation.Required, validation.Length(1, 100), validation.By(validSlug)),
		validation.Field(&e.Name, validation.Required, validation.Length(1, 200)),
	)
}

func validSlug(value any) error {
	s, _ := value.(string)
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			continue
		}
		return goerrors.New("slug may only contain lowercase letters, digits and dashes", goerrors.CategoryValidation)
	}
	return nil
}

// ProvisionTenantHandler creates a tenant and, when an owner email is
// given, provisions that principal with the admin role for the tenant.
type ProvisionTenantHandler struct {
	repo     RepositoryManager
	registry *RoleRegistry
}

func NewProvisionTenantHandler(repo RepositoryManager, registry *RoleRegistry) *ProvisionTenantHandler {
	return &ProvisionTenantHandler{repo: repo, registry: registry}
}

func (h *ProvisionTenantHandler) Execute(ctx context.Context, event ProvisionTenantMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during tenant provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProvisionTenantHandler) execute(ctx context.Context, event ProvisionTenantMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid tenant payload")
	}

	tenant := &Tenant{
		Slug:   strings.ToLower(strings.TrimSpace(event.Slug)),
		Name:   event.Name,
		Status: TenantStatusActive,
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := h.repo.Tenants().GetBySlugTx(ctx, tx, tenant.Slug)
		if err == nil {
			return goerrors.New("tenant already exists", goerrors.CategoryConflict).
				WithMetadata(map[string]any{"slug": existing.Slug})
		}
		if !repository.IsRecordNotFound(err) {
			return err
		}

		tenant.ID = uuid.New()
		if tenant, err = h.repo.Tenants().CreateTx(ctx, tx, tenant); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create tenant")
		}

		if event.OwnerEmail != "" {
			var owner *User
			if owner, err = h.repo.Users().GetOrProvisionTx(ctx, tx, event.OwnerEmail); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not provision tenant admin")
			}

			// the owner grant rolls back with the tenant
			if _, err = h.registry.AssignTx(ctx, tx, owner.ID, RoleAdmin, &tenant.ID); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "tenant provisioning transaction failed")
	}

	return nil
}
