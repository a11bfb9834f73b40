package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Tenants() Tenants
	LinkTokens() LinkTokens
	RefreshTokens() RefreshTokens
	RoleAssignments() RoleAssignments
}

type mngr struct {
	db              *bun.DB
	users           Users
	tenants         Tenants
	linkTokens      LinkTokens
	refreshTokens   RefreshTokens
	roleAssignments RoleAssignments
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:              db,
		users:           NewUsersRepository(db),
		tenants:         NewTenantsRepository(db),
		linkTokens:      NewLinkTokensRepository(db),
		refreshTokens:   NewRefreshTokensRepository(db),
		roleAssignments: NewRoleAssignmentsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.tenants == nil {
		return errors.New("repository tenants should be initialized")
	}

	if m.linkTokens == nil {
		return errors.New("repository linkTokens should be initialized")
	}

	if m.refreshTokens == nil {
		return errors.New("repository refreshTokens should be initialized")
	}

	if m.roleAssignments == nil {
		return errors.New("repository roleAssignments should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Tenants() Tenants {
	return m.tenants
}

func (m mngr) LinkTokens() LinkTokens {
	return m.linkTokens
}

func (m mngr) RefreshTokens() RefreshTokens {
	return m.refreshTokens
}

func (m mngr) RoleAssignments() RoleAssignments {
	return m.roleAssignments
}
