package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// RefreshTokenStore is the durable, revocable store of refresh
// credentials. Rotate must be an atomic conditional write: of two
// concurrent refresh calls on one credential, exactly one wins.
type RefreshTokenStore interface {
	Save(ctx context.Context, token *RefreshToken) (*RefreshToken, error)
	GetByHash(ctx context.Context, hash string) (*RefreshToken, error)
	Rotate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	RevokeFamily(ctx context.Context, familyID uuid.UUID, at time.Time) error
}

// RoleResolver answers which role a principal effectively holds within a
// tenant. Consulted on every session mint and rotation so role changes
// propagate at the next refresh.
type RoleResolver interface {
	ResolveRole(ctx context.Context, principalID uuid.UUID, tenantID uuid.UUID) (Role, error)
}

// Credentials is the access/refresh pair handed to the caller's edge
type Credentials struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TenantID         string    `json:"tenant_id"`
}

// SessionManager mints credential pairs and owns refresh rotation and
// revocation semantics.
type SessionManager struct {
	tokens     TokenService
	store      RefreshTokenStore
	principals PrincipalStore
	roles      RoleResolver
	cfg        Config
	logger     Logger
	sink       ActivitySink
	decorator  ClaimsDecorator
	now        func() time.Time
}

// NewSessionManager returns a configured session manager
func NewSessionManager(tokens TokenService, store RefreshTokenStore, principals PrincipalStore, roles RoleResolver, cfg Config) *SessionManager {
	return &SessionManager{
		tokens:     tokens,
		store:      store,
		principals: principals,
		roles:      roles,
		cfg:        cfg,
		logger:     defLogger{},
		sink:       noopActivitySink{},
		decorator:  noopClaimsDecorator{},
		now:        time.Now,
	}
}

// WithLogger sets the logger
func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithActivitySink sets the audit sink
func (m *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	m.sink = normalizeActivitySink(sink)
	return m
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching access
// credentials. Protected claims stay immutable; see claims_guard.go.
func (m *SessionManager) WithClaimsDecorator(decorator ClaimsDecorator) *SessionManager {
	m.decorator = normalizeClaimsDecorator(decorator)
	return m
}

// Create mints a fresh credential pair for a verified identity. It starts
// a new refresh family at generation one.
func (m *SessionManager) Create(ctx context.Context, tenant *Tenant, principal *User) (*Credentials, error) {
	if tenant == nil || principal == nil {
		return nil, goerrors.New("tenant and principal are required", goerrors.CategoryBadInput)
	}

	creds, err := m.mint(ctx, principal, tenant.ID, uuid.New(), 1)
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, m.sink, m.logger, ActivityEvent{
		EventType:   ActivityEventSessionCreated,
		Actor:       ActorRef{ID: principal.ID.String(), Type: "user"},
		PrincipalID: principal.ID.String(),
		TenantID:    tenant.ID.String(),
	})

	return creds, nil
}

// Refresh validates and rotates a refresh credential, returning a new
// pair. Presenting an already-rotated credential is treated as a
// compromise signal: the entire family is revoked.
func (m *SessionManager) Refresh(ctx context.Context, rawRefresh string) (*Credentials, error) {
	record, err := m.store.GetByHash(ctx, HashTokenValue(rawRefresh))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidRefresh
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load refresh credential")
	}

	now := m.now()

	if record.RevokedAt != nil || record.IsExpiredAt(now) {
		return nil, ErrInvalidRefresh
	}

	if record.RotatedAt != nil {
		// reuse of a rotated credential: someone is replaying a stolen value
		m.logger.Warn("refresh credential reuse detected", "family", record.FamilyID.String(), "generation", record.Generation)
		if err := m.store.RevokeFamily(ctx, record.FamilyID, now); err != nil {
			m.logger.Error("failed to revoke session family after reuse", "family", record.FamilyID.String(), "error", err)
		}
		emitActivity(ctx, m.sink, m.logger, ActivityEvent{
			EventType:   ActivityEventRefreshReuse,
			Actor:       ActorRef{Type: "unknown"},
			PrincipalID: record.PrincipalID.String(),
			TenantID:    record.TenantID.String(),
			Metadata: map[string]any{
				"family_id":  record.FamilyID.String(),
				"generation": record.Generation,
			},
		})
		return nil, ErrInvalidRefresh
	}

	won, err := m.store.Rotate(ctx, record.ID, now)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate refresh credential")
	}
	if !won {
		// a concurrent refresh already rotated it; exactly one caller wins
		return nil, ErrInvalidRefresh
	}

	principal, err := m.principals.GetByUUID(ctx, record.PrincipalID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load principal for refresh")
	}

	if principal.Status == UserStatusSuspended {
		if err := m.store.RevokeFamily(ctx, record.FamilyID, now); err != nil {
			m.logger.Error("failed to revoke family for suspended principal", "error", err)
		}
		return nil, ErrInvalidRefresh
	}

	creds, err := m.mint(ctx, principal, record.TenantID, record.FamilyID, record.Generation+1)
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, m.sink, m.logger, ActivityEvent{
		EventType:   ActivityEventSessionRefreshed,
		Actor:       ActorRef{ID: principal.ID.String(), Type: "user"},
		PrincipalID: principal.ID.String(),
		TenantID:    record.TenantID.String(),
		Metadata: map[string]any{
			"family_id":  record.FamilyID.String(),
			"generation": record.Generation + 1,
		},
	})

	return creds, nil
}

// Revoke invalidates the session family the credential belongs to,
// killing both halves of the pair immediately. Unknown credentials are a
// no-op so the operation stays idempotent.
func (m *SessionManager) Revoke(ctx context.Context, rawRefresh string) error {
	record, err := m.store.GetByHash(ctx, HashTokenValue(rawRefresh))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load refresh credential")
	}

	if err := m.store.RevokeFamily(ctx, record.FamilyID, m.now()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session family")
	}

	emitActivity(ctx, m.sink, m.logger, ActivityEvent{
		EventType:   ActivityEventSessionRevoked,
		Actor:       ActorRef{ID: record.PrincipalID.String(), Type: "user"},
		PrincipalID: record.PrincipalID.String(),
		TenantID:    record.TenantID.String(),
		Metadata:    map[string]any{"family_id": record.FamilyID.String()},
	})

	return nil
}

func (m *SessionManager) mint(ctx context.Context, principal *User, tenantID, familyID uuid.UUID, generation int) (*Credentials, error) {
	role := Role("")
	if m.roles != nil {
		resolved, err := m.roles.ResolveRole(ctx, principal.ID, tenantID)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve role for session")
		}
		role = resolved
	}

	identity := IdentityFromPrincipal(principal, role)

	access, accessExpiry, err := m.generateAccess(ctx, identity, tenantID.String())
	if err != nil {
		return nil, err
	}

	rawRefresh, err := NewTokenValue()
	if err != nil {
		return nil, err
	}

	now := m.now()
	record := &RefreshToken{
		FamilyID:    familyID,
		PrincipalID: principal.ID,
		TenantID:    tenantID,
		TokenHash:   HashTokenValue(rawRefresh),
		Generation:  generation,
		ExpiresAt:   now.Add(m.refreshTTL()),
	}

	if _, err := m.store.Save(ctx, record); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store refresh credential")
	}

	return &Credentials{
		AccessToken:      access,
		RefreshToken:     rawRefresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: record.ExpiresAt,
		TenantID:         tenantID.String(),
	}, nil
}

func (m *SessionManager) generateAccess(ctx context.Context, identity Identity, tenantID string) (string, time.Time, error) {
	access, expiresAt, err := m.tokens.Generate(identity, tenantID)
	if err != nil {
		return "", time.Time{}, err
	}

	if _, isNoop := m.decorator.(noopClaimsDecorator); isNoop {
		return access, expiresAt, nil
	}

	// re-sign through the decorator path so extensions land in the token
	claimsAny, err := m.tokens.Validate(access)
	if err != nil {
		return "", time.Time{}, err
	}

	claims, ok := claimsAny.(*JWTClaims)
	if !ok {
		return access, expiresAt, nil
	}

	snapshot := captureImmutableClaims(claims)
	if err := m.decorator.Decorate(ctx, identity, claims); err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "claims decorator failed")
	}
	if err := snapshot.validate(claims); err != nil {
		return "", time.Time{}, err
	}

	signed, err := m.tokens.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, claims.Expires(), nil
}

func (m *SessionManager) refreshTTL() time.Duration {
	if ttl := m.cfg.GetRefreshTokenExpiration(); ttl > 0 {
		return ttl
	}
	return 30 * 24 * time.Hour
}
