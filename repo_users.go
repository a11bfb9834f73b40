package auth

import (
	"context"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var TrackLoginSQL = `UPDATE "users" AS "usr"
SET
	"loggedin_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// Users is the principal repository. It satisfies PrincipalStore so the
// link verifier and session manager can stay store-agnostic.
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*User, error)
	GetOrProvision(ctx context.Context, email string) (*User, error)
	GetOrProvisionTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	TrackLogin(ctx context.Context, id uuid.UUID) error
	TrackLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users          = (*users)(nil)
	_ PrincipalStore = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByUUID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.Repository.GetByID(ctx, id.String())
}

func (a *users) GetOrProvision(ctx context.Context, email string) (*User, error) {
	return a.GetOrProvisionTx(ctx, a.db, email)
}

func (a *users) GetOrProvisionTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	existing, err := a.GetByEmailTx(ctx, tx, email)
	if err == nil {
		return existing, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record := &User{Email: normalizeEmail(email)}
	prepareUserDefaults(record)

	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *users) TrackLogin(ctx context.Context, id uuid.UUID) error {
	return a.TrackLoginTx(ctx, a.db, id)
}

func (a *users) TrackLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := a.Repository.RawTx(ctx, tx, TrackLoginSQL, time.Now(), id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		// deterministic id derived from the email so retried
		// provisioning converges on the same principal
		if id, err := hashid.NewUUID(record.Email); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
