package auth

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var RotateRefreshTokenSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"rotated_at" = ?
WHERE
	"rft"."id" = ?
AND "rft"."rotated_at" IS NULL
AND "rft"."revoked_at" IS NULL
RETURNING *;`

var RevokeRefreshFamilySQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"revoked_at" = ?
WHERE
	"rft"."family_id" = ?
AND "rft"."revoked_at" IS NULL;`

var RevokeRefreshPrincipalSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"revoked_at" = ?
WHERE
	"rft"."principal_id" = ?
AND "rft"."revoked_at" IS NULL;`

// RefreshTokens is the refresh credential repository. Rotate is
// conditional on the record never having been rotated or revoked, which
// is what makes concurrent refresh a single-winner race.
type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	Save(ctx context.Context, token *RefreshToken) (*RefreshToken, error)
	GetByHash(ctx context.Context, hash string) (*RefreshToken, error)
	Rotate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
	RevokeFamily(ctx context.Context, familyID uuid.UUID, at time.Time) error
	RevokeFamilyTx(ctx context.Context, tx bun.IDB, familyID uuid.UUID, at time.Time) error
	RevokeForPrincipal(ctx context.Context, principalID uuid.UUID, at time.Time) error
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db *bun.DB
}

var (
	_ RefreshTokens     = (*refreshTokens)(nil)
	_ RefreshTokenStore = (*refreshTokens)(nil)
	_ SessionRevoker    = (*refreshTokens)(nil)
)

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(t *RefreshToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *RefreshToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &refreshTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *refreshTokens) Save(ctx context.Context, token *RefreshToken) (*RefreshToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	return a.Repository.Create(ctx, token)
}

func (a *refreshTokens) GetByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token_hash": hash,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *refreshTokens) Rotate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return a.RotateTx(ctx, a.db, id, at)
}

func (a *refreshTokens) RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := a.Repository.RawTx(ctx, tx, RotateRefreshTokenSQL, at, id.String())
	if err != nil {
		return false, err
	}
	return len(res) > 0, nil
}

func (a *refreshTokens) RevokeFamily(ctx context.Context, familyID uuid.UUID, at time.Time) error {
	return a.RevokeFamilyTx(ctx, a.db, familyID, at)
}

func (a *refreshTokens) RevokeFamilyTx(ctx context.Context, tx bun.IDB, familyID uuid.UUID, at time.Time) error {
	_, err := tx.NewRaw(RevokeRefreshFamilySQL, at, familyID.String()).Exec(ctx)
	return err
}

func (a *refreshTokens) RevokeForPrincipal(ctx context.Context, principalID uuid.UUID, at time.Time) error {
	_, err := a.db.NewRaw(RevokeRefreshPrincipalSQL, at, principalID.String()).Exec(ctx)
	return err
}
