package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// PrincipalStore retrieves and provisions principals. GetOrProvision
// creates a principal record on first successful link consumption for an
// email the system has never seen.
type PrincipalStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*User, error)
	GetOrProvision(ctx context.Context, email string) (*User, error)
	TrackLogin(ctx context.Context, id uuid.UUID) error
}

// RoleAssigner is the slice of the registry the verifier needs to grant
// a freshly provisioned principal their starting role.
type RoleAssigner interface {
	Assign(ctx context.Context, principalID uuid.UUID, role Role, tenantID *uuid.UUID) (*RoleAssignment, error)
}

// VerifyResult carries the identity bound to a consumed link
type VerifyResult struct {
	Principal *User
	Tenant    *Tenant
}

// LinkVerifier consumes magic link tokens exactly once. This is the
// security-critical half of the passwordless flow: two concurrent
// verifications of one token must never both succeed.
type LinkVerifier struct {
	tenants    TenantStore
	tokens     LinkTokenStore
	principals PrincipalStore
	roles      RoleAssigner
	logger     Logger
	sink       ActivitySink
	now        func() time.Time
}

// NewLinkVerifier returns a configured verifier
func NewLinkVerifier(tenants TenantStore, tokens LinkTokenStore, principals PrincipalStore, roles RoleAssigner) *LinkVerifier {
	return &LinkVerifier{
		tenants:    tenants,
		tokens:     tokens,
		principals: principals,
		roles:      roles,
		logger:     defLogger{},
		sink:       noopActivitySink{},
		now:        time.Now,
	}
}

// WithLogger sets the logger
func (v *LinkVerifier) WithLogger(logger Logger) *LinkVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// WithActivitySink sets the audit sink
func (v *LinkVerifier) WithActivitySink(sink ActivitySink) *LinkVerifier {
	v.sink = normalizeActivitySink(sink)
	return v
}

// Verify consumes the token and returns the bound identity. Order of
// checks: existence, tenant binding, expiry, consumption state. The
// tenant check runs even though values are unguessable; a leaked value
// must still be useless across tenants.
func (v *LinkVerifier) Verify(ctx context.Context, tenantSlug, rawValue string) (*VerifyResult, error) {
	tenant, err := v.tenants.GetBySlug(ctx, tenantSlug)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, v.reject(ctx, "", ErrTenantNotFound, nil)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve tenant")
	}

	if !tenant.IsActive() {
		return nil, v.reject(ctx, tenant.ID.String(), ErrTenantInactive, nil)
	}

	hash := HashTokenValue(rawValue)

	token, err := v.tokens.GetByHash(ctx, hash)
	if err != nil {
		if goerrors.IsNotFound(err) || HasTextCode(err, TextCodeLinkNotFound) {
			return nil, v.reject(ctx, tenant.ID.String(), ErrLinkNotFound, nil)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load magic link token")
	}

	if token.TenantID != tenant.ID {
		return nil, v.reject(ctx, tenant.ID.String(), ErrTenantMismatch, token)
	}

	now := v.now()

	if token.IsExpiredAt(now) {
		// lazy transition; failure to mark is harmless, expiry re-checks on read
		if err := v.tokens.MarkExpired(ctx, hash, now); err != nil {
			v.logger.Warn("failed to mark link token expired", "token", token.ID.String(), "error", err)
		}
		return nil, v.reject(ctx, tenant.ID.String(), ErrLinkExpired, token)
	}

	if token.Status != LinkStatusPending {
		return nil, v.reject(ctx, tenant.ID.String(), ErrLinkConsumed, token)
	}

	// the load-bearing step: conditional transition, exactly one winner
	consumed, err := v.tokens.Consume(ctx, hash, now)
	if err != nil {
		if HasTextCode(err, TextCodeLinkConsumed) || HasTextCode(err, TextCodeLinkNotFound) {
			return nil, v.reject(ctx, tenant.ID.String(), ErrLinkConsumed, token)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume magic link token")
	}

	principal, provisioned, err := v.resolvePrincipal(ctx, consumed.Email)
	if err != nil {
		return nil, err
	}

	if principal.Status == UserStatusSuspended {
		return nil, ErrForbidden
	}

	if provisioned && v.roles != nil {
		tenantID := tenant.ID
		if _, err := v.roles.Assign(ctx, principal.ID, RoleCustomer, &tenantID); err != nil {
			v.logger.Error("failed to assign starting role", "principal", principal.ID.String(), "error", err)
		}
	}

	// login tracking is non fatal
	if err := v.principals.TrackLogin(ctx, principal.ID); err != nil {
		v.logger.Warn("failed to track login", "principal", principal.ID.String(), "error", err)
	}

	emitActivity(ctx, v.sink, v.logger, ActivityEvent{
		EventType:   ActivityEventLinkConsumed,
		Actor:       ActorRef{ID: principal.ID.String(), Type: "user"},
		PrincipalID: principal.ID.String(),
		TenantID:    tenant.ID.String(),
		Metadata: map[string]any{
			"token_id": consumed.ID.String(),
		},
	})

	return &VerifyResult{Principal: principal, Tenant: tenant}, nil
}

func (v *LinkVerifier) resolvePrincipal(ctx context.Context, email string) (*User, bool, error) {
	existing, err := v.principals.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}

	if !goerrors.IsNotFound(err) {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load principal")
	}

	principal, err := v.principals.GetOrProvision(ctx, email)
	if err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to provision principal")
	}

	emitActivity(ctx, v.sink, v.logger, ActivityEvent{
		EventType:   ActivityEventPrincipalProvisoned,
		Actor:       ActorRef{Type: "system"},
		PrincipalID: principal.ID.String(),
		Metadata:    map[string]any{"email": email},
	})

	return principal, true, nil
}

func (v *LinkVerifier) reject(ctx context.Context, tenantID string, cause error, token *MagicLinkToken) error {
	metadata := map[string]any{"reason": cause.Error()}
	if token != nil {
		metadata["token_id"] = token.ID.String()
	}

	emitActivity(ctx, v.sink, v.logger, ActivityEvent{
		EventType: ActivityEventLinkRejected,
		Actor:     ActorRef{Type: "anonymous"},
		TenantID:  tenantID,
		Metadata:  metadata,
	})

	return cause
}
