package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// TenantStore resolves tenants for issuance and verification
type TenantStore interface {
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
}

// LinkTokenStore is the durable store of outstanding magic link tokens.
// Consume must be an atomic conditional transition: pending to consumed,
// exactly once under concurrent callers.
type LinkTokenStore interface {
	Save(ctx context.Context, token *MagicLinkToken) (*MagicLinkToken, error)
	GetByHash(ctx context.Context, hash string) (*MagicLinkToken, error)
	Consume(ctx context.Context, hash string, at time.Time) (*MagicLinkToken, error)
	MarkExpired(ctx context.Context, hash string, at time.Time) error
}

const (
	defaultDeliveryTimeout = 5 * time.Second
	limiterCacheSize       = 4096
)

// LinkIssuer creates magic link tokens bound to (tenant, email) and hands
// delivery to the external notification capability.
type LinkIssuer struct {
	tenants         TenantStore
	tokens          LinkTokenStore
	delivery        LinkDelivery
	cfg             Config
	logger          Logger
	sink            ActivitySink
	limiters        *lru.Cache[string, *rate.Limiter]
	limit           rate.Limit
	burst           int
	devLinkEcho     bool
	deliveryTimeout time.Duration
	now             func() time.Time
}

// LinkIssuerOption configures a LinkIssuer at construction time.
type LinkIssuerOption func(*LinkIssuer)

// WithDevLinkEcho makes Issue return the raw link to the caller for local
// inspection. NewLinkIssuer refuses this option in production.
func WithDevLinkEcho() LinkIssuerOption {
	return func(i *LinkIssuer) {
		i.devLinkEcho = true
	}
}

// WithIssuerLogger sets the logger
func WithIssuerLogger(logger Logger) LinkIssuerOption {
	return func(i *LinkIssuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithIssuerActivitySink sets the audit sink
func WithIssuerActivitySink(sink ActivitySink) LinkIssuerOption {
	return func(i *LinkIssuer) {
		i.sink = normalizeActivitySink(sink)
	}
}

// WithIssuanceRate overrides the per (tenant, email) throttle. The default
// allows a small burst then one request per minute.
func WithIssuanceRate(limit rate.Limit, burst int) LinkIssuerOption {
	return func(i *LinkIssuer) {
		i.limit = limit
		i.burst = burst
	}
}

// WithDeliveryTimeout bounds the delivery call. The token is already
// durable by then; a slow channel must not hold the caller hostage.
func WithDeliveryTimeout(d time.Duration) LinkIssuerOption {
	return func(i *LinkIssuer) {
		if d > 0 {
			i.deliveryTimeout = d
		}
	}
}

// NewLinkIssuer returns a configured issuer. It fails rather than start
// with the dev link echo enabled in a production environment.
func NewLinkIssuer(tenants TenantStore, tokens LinkTokenStore, delivery LinkDelivery, cfg Config, opts ...LinkIssuerOption) (*LinkIssuer, error) {
	if tenants == nil || tokens == nil || cfg == nil {
		return nil, goerrors.New("tenant store, token store, and config are required", goerrors.CategoryBadInput)
	}

	if delivery == nil {
		delivery = LinkDeliveryFunc(nil)
	}

	issuer := &LinkIssuer{
		tenants:         tenants,
		tokens:          tokens,
		delivery:        delivery,
		cfg:             cfg,
		logger:          defLogger{},
		sink:            noopActivitySink{},
		limit:           rate.Every(time.Minute),
		burst:           3,
		deliveryTimeout: defaultDeliveryTimeout,
		now:             time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}

	if issuer.devLinkEcho && cfg.GetEnvironment() == EnvProduction {
		return nil, goerrors.New("dev link echo cannot be enabled in production", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"environment": cfg.GetEnvironment()})
	}

	limiters, err := lru.New[string, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build issuance limiter cache")
	}
	issuer.limiters = limiters

	return issuer, nil
}

// IssueLinkRequest is the issuance input
type IssueLinkRequest struct {
	TenantSlug string `json:"tenant" form:"tenant"`
	Email      string `json:"email" form:"email"`
}

// Validate will run validation rules
func (r IssueLinkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.TenantSlug,
			validation.Required,
			validation.Length(1, 100),
		),
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

// IssueLinkResult is an opaque confirmation. Link is populated only when
// the dev echo capability was injected at construction.
type IssueLinkResult struct {
	TokenID   string    `json:"token_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Delivered bool      `json:"delivered"`
	Link      string    `json:"link,omitempty"`
}

// Issue creates and stores a fresh pending token, then delegates delivery.
// A delivery failure is reported on the result, never as an error: the
// token is durable and the link may still arrive through a retry channel.
func (i *LinkIssuer) Issue(ctx context.Context, req IssueLinkRequest) (*IssueLinkResult, error) {
	if err := req.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid magic link request")
	}

	tenant, err := i.resolveActiveTenant(ctx, req.TenantSlug)
	if err != nil {
		return nil, err
	}

	if !i.allow(tenant.ID.String(), req.Email) {
		i.logger.Warn("magic link issuance throttled", "tenant", req.TenantSlug, "email", req.Email)
		return nil, ErrTooManyRequests
	}

	raw, err := NewTokenValue()
	if err != nil {
		return nil, err
	}

	now := i.now()
	token := &MagicLinkToken{
		TenantID:  tenant.ID,
		Email:     req.Email,
		TokenHash: HashTokenValue(raw),
		Status:    LinkStatusPending,
		ExpiresAt: now.Add(i.linkTTL()),
	}

	if token, err = i.tokens.Save(ctx, token); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store magic link token")
	}

	result := &IssueLinkResult{
		TokenID:   token.ID.String(),
		Email:     token.Email,
		ExpiresAt: token.ExpiresAt,
	}

	ref := VerificationReference{
		TenantSlug: tenant.Slug,
		Email:      token.Email,
		Token:      raw,
		ExpiresAt:  token.ExpiresAt,
	}

	result.Delivered = i.deliver(ctx, tenant, ref) == nil

	emitActivity(ctx, i.sink, i.logger, ActivityEvent{
		EventType: ActivityEventLinkIssued,
		Actor:     ActorRef{Type: "anonymous"},
		TenantID:  tenant.ID.String(),
		Metadata: map[string]any{
			"email":     token.Email,
			"token_id":  token.ID.String(),
			"delivered": result.Delivered,
		},
	})

	if i.devLinkEcho {
		result.Link = raw
	}

	return result, nil
}

func (i *LinkIssuer) resolveActiveTenant(ctx context.Context, slug string) (*Tenant, error) {
	tenant, err := i.tenants.GetBySlug(ctx, slug)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve tenant")
	}

	if !tenant.IsActive() {
		return nil, ErrTenantInactive
	}

	return tenant, nil
}

func (i *LinkIssuer) deliver(ctx context.Context, tenant *Tenant, ref VerificationReference) error {
	deliveryCtx, cancel := context.WithTimeout(ctx, i.deliveryTimeout)
	defer cancel()

	if err := i.delivery.Deliver(deliveryCtx, tenant, ref); err != nil {
		failure := ErrDeliveryFailed.Clone()
		failure.Source = err

		// internal detail stays in logs; callers only learn delivered=false
		i.logger.Error("magic link delivery failed", "tenant", tenant.Slug, "error", failure)
		emitActivity(ctx, i.sink, i.logger, ActivityEvent{
			EventType: ActivityEventLinkDeliveryFailed,
			Actor:     ActorRef{Type: "system"},
			TenantID:  tenant.ID.String(),
			Metadata: map[string]any{
				"email": ref.Email,
				"code":  failure.TextCode,
				"error": err.Error(),
			},
		})
		return failure
	}

	return nil
}

func (i *LinkIssuer) allow(tenantID, email string) bool {
	key := tenantID + "|" + email
	limiter, ok := i.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(i.limit, i.burst)
		i.limiters.Add(key, limiter)
	}
	return limiter.AllowN(i.now(), 1)
}

func (i *LinkIssuer) linkTTL() time.Duration {
	if ttl := i.cfg.GetLinkTokenExpiration(); ttl > 0 {
		return ttl
	}
	// contract with user-facing copy: links are good for 30 minutes
	return 30 * time.Minute
}
