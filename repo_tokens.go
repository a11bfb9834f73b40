package auth

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ConsumeLinkTokenSQL = `UPDATE "magic_link_tokens" AS "mlt"
SET
	"status" = 'consumed',
	"consumed_at" = ?
WHERE
	"mlt"."token_hash" = ?
AND "mlt"."status" = 'pending'
AND "mlt"."deleted_at" IS NULL
RETURNING *;`

var ExpireLinkTokenSQL = `UPDATE "magic_link_tokens" AS "mlt"
SET
	"status" = 'expired',
	"updated_at" = ?
WHERE
	"mlt"."token_hash" = ?
AND "mlt"."status" = 'pending'
AND "mlt"."deleted_at" IS NULL;`

// LinkTokens is the magic link token repository. Consume is the single
// write path that transitions a token out of pending, guarded so only one
// of any number of concurrent verifications succeeds.
type LinkTokens interface {
	repository.Repository[*MagicLinkToken]

	Save(ctx context.Context, token *MagicLinkToken) (*MagicLinkToken, error)
	GetByHash(ctx context.Context, hash string) (*MagicLinkToken, error)
	GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*MagicLinkToken, error)
	Consume(ctx context.Context, hash string, at time.Time) (*MagicLinkToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, hash string, at time.Time) (*MagicLinkToken, error)
	MarkExpired(ctx context.Context, hash string, at time.Time) error
}

type linkTokens struct {
	repository.Repository[*MagicLinkToken]
	db *bun.DB
}

var (
	_ LinkTokens     = (*linkTokens)(nil)
	_ LinkTokenStore = (*linkTokens)(nil)
)

func NewLinkTokensRepository(db *bun.DB) LinkTokens {
	repo := repository.NewRepository[*MagicLinkToken](db, repository.ModelHandlers[*MagicLinkToken]{
		NewRecord: func() *MagicLinkToken { return &MagicLinkToken{} },
		GetID: func(t *MagicLinkToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *MagicLinkToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &linkTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *linkTokens) Save(ctx context.Context, token *MagicLinkToken) (*MagicLinkToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.Status == "" {
		token.Status = LinkStatusPending
	}
	return a.Repository.Create(ctx, token)
}

func (a *linkTokens) GetByHash(ctx context.Context, hash string) (*MagicLinkToken, error) {
	return a.GetByHashTx(ctx, a.db, hash)
}

func (a *linkTokens) GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*MagicLinkToken, error) {
	record := &MagicLinkToken{}
	err := tx.NewSelect().
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

func (a *linkTokens) Consume(ctx context.Context, hash string, at time.Time) (*MagicLinkToken, error) {
	return a.ConsumeTx(ctx, a.db, hash, at)
}

func (a *linkTokens) ConsumeTx(ctx context.Context, tx bun.IDB, hash string, at time.Time) (*MagicLinkToken, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConsumeLinkTokenSQL, at, hash)
	if err != nil {
		return nil, err
	}

	if len(res) > 0 {
		return res[0], nil
	}

	// no row transitioned: either the token never existed or another
	// caller already consumed it
	if _, err := a.GetByHashTx(ctx, tx, hash); err != nil {
		return nil, err
	}

	return nil, ErrLinkConsumed
}

func (a *linkTokens) MarkExpired(ctx context.Context, hash string, at time.Time) error {
	_, err := a.db.NewRaw(ExpireLinkTokenSQL, at, hash).Exec(ctx)
	return err
}
