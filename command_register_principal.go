package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RegisterPrincipalMessage struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	TenantSlug string `json:"tenant_slug"`
	Role       string `json:"role"`
}

func (e RegisterPrincipalMessage) Type() string { return "auth.principal.register" }

func (e RegisterPrincipalMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, validation.Length(1, 200)),
		validation.Field(&e.LastName, validation.Length(1, 200)),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Phone, validation.By(ValidPhoneNumber("US"))),
		validation.Field(&e.TenantSlug, validation.Required, validation.Length(1, 100)),
		validation.Field(&e.Role, validation.Required, validation.By(validRoleName)),
	)
}

func validRoleName(value any) error {
	s, _ := value.(string)
	if _, ok := ParseRole(s); !ok {
		return errInvalidRoleName
	}
	return nil
}

var errInvalidRoleName = goerrors.New("unknown role", goerrors.CategoryValidation)

// RegisterPrincipalHandler provisions a principal with an explicit role
// inside a tenant, the administrative path used to seed staff and owner
// accounts before they ever request a link.
type RegisterPrincipalHandler struct {
	repo     RepositoryManager
	registry *RoleRegistry
}

func NewRegisterPrincipalHandler(repo RepositoryManager, registry *RoleRegistry) *RegisterPrincipalHandler {
	return &RegisterPrincipalHandler{repo: repo, registry: registry}
}

func (h *RegisterPrincipalHandler) Execute(ctx context.Context, event RegisterPrincipalMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during principal registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterPrincipalHandler) execute(ctx context.Context, event RegisterPrincipalMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	role, ok := ParseRole(event.Role)
	if !ok {
		return ErrInvalidRoleScope.Clone().WithMetadata(map[string]any{
			"role": event.Role,
		})
	}

	user := &User{}
	var tenant *Tenant
	var err error

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tenant, err = h.repo.Tenants().GetBySlugTx(ctx, tx, event.TenantSlug)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryNotFound, "unknown tenant")
		}

		if user, err = h.repo.Users().GetOrProvisionTx(ctx, tx, event.Email); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not provision principal")
		}

		user.FirstName = event.FirstName
		user.LastName = event.LastName
		if event.Phone != "" {
			user.Phone = NormalizePhoneNumber(event.Phone, "US")
		}

		if user, err = h.repo.Users().UpdateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update principal")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "principal registration transaction failed")
	}

	var tenantRef *uuid.UUID
	if !role.IsGlobal() {
		tenantRef = &tenant.ID
	}

	if _, err := h.registry.Assign(ctx, user.ID, role, tenantRef); err != nil {
		return err
	}

	return nil
}
