package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Guard enforces authentication and permission checks at the routing
// edge. Authentication failures and authorization failures are distinct:
// a missing or bad credential is ErrUnauthenticated, a valid credential
// without the needed grant is ErrForbidden.
type Guard struct {
	validator TokenValidator
	registry  *RoleRegistry
	cfg       Config
	logger    Logger
}

// NewGuard builds a guard around a token validator and role registry
func NewGuard(validator TokenValidator, registry *RoleRegistry, cfg Config) *Guard {
	return &Guard{
		validator: validator,
		registry:  registry,
		cfg:       cfg,
		logger:    defLogger{},
	}
}

// WithLogger sets the logger
func (g *Guard) WithLogger(logger Logger) *Guard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Authenticate validates the presented access credential and stores the
// claims under the configured context key. With optional set, requests
// without a credential pass through unauthenticated instead of failing.
func (g *Guard) Authenticate(optional ...bool) router.MiddlewareFunc {
	soft := len(optional) > 0 && optional[0]

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			raw, err := g.lookupToken(ctx)
			if err != nil || raw == "" {
				if soft {
					return next(ctx)
				}
				return ErrUnauthenticated
			}

			claims, err := g.validator.Validate(raw)
			if err != nil {
				if soft {
					return next(ctx)
				}
				if IsTokenExpiredError(err) {
					return ErrUnauthenticated.Clone().WithMetadata(map[string]any{
						"reason": "token expired",
					})
				}
				g.logger.Debug("access credential rejected", "error", err)
				return ErrUnauthenticated
			}

			ctx.Locals(g.contextKey(), claims)
			ctx.SetContext(WithClaimsContext(ctx.Context(), claims))

			return next(ctx)
		}
	}
}

// RequirePermission requires an authenticated principal whose role grants
// the permission in the tenant the credential was issued for.
func (g *Guard) RequirePermission(permission Permission) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			claims, err := g.claimsFrom(ctx)
			if err != nil {
				return err
			}

			if !claims.Grants(permission) {
				return g.deny(claims, permission, claims.TenantID())
			}

			return next(ctx)
		}
	}
}

// RequireTenantPermission resolves the tenant from a route parameter and
// checks the permission against that tenant. The registry is consulted so
// a credential minted for one tenant cannot act in another unless the
// principal holds a global role.
func (g *Guard) RequireTenantPermission(permission Permission, tenantParam string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			claims, err := g.claimsFrom(ctx)
			if err != nil {
				return err
			}

			tenantID := ctx.Param(tenantParam)
			if tenantID == "" {
				return goerrors.New("missing tenant identifier", goerrors.CategoryBadInput)
			}

			if tenantID == claims.TenantID() {
				if claims.Grants(permission) {
					return next(ctx)
				}
				return g.deny(claims, permission, tenantID)
			}

			// cross tenant access needs a registry check, the credential
			// alone only speaks for its own tenant
			allowed, err := g.registryCan(ctx, claims, permission, tenantID)
			if err != nil {
				return err
			}
			if !allowed {
				return g.deny(claims, permission, tenantID)
			}

			return next(ctx)
		}
	}
}

// RequireRole requires the authenticated principal to hold at least the
// given role in the tenant the credential was issued for.
func (g *Guard) RequireRole(minimum Role) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			claims, err := g.claimsFrom(ctx)
			if err != nil {
				return err
			}

			if !claims.IsAtLeast(string(minimum)) {
				return ErrForbidden.Clone().WithMetadata(map[string]any{
					"minimum_role": string(minimum),
					"role":         claims.Role(),
				})
			}

			return next(ctx)
		}
	}
}

// ErrorHandler renders guard errors as JSON with the right status split:
// 401 for unauthenticated, 403 for forbidden.
func (g *Guard) ErrorHandler() func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			g.logger.Debug("guard error", "category", string(richErr.Category), "text_code", richErr.TextCode)
		}
		return RenderErrorJSON(ctx, err)
	}
}

func (g *Guard) claimsFrom(ctx router.Context) (AuthClaims, error) {
	claims, ok := ctx.Locals(g.contextKey()).(AuthClaims)
	if !ok || claims == nil {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

func (g *Guard) registryCan(ctx router.Context, claims AuthClaims, permission Permission, tenantID string) (bool, error) {
	if g.registry == nil {
		return false, nil
	}

	principalID, err := uuid.Parse(claims.PrincipalID())
	if err != nil {
		return false, ErrUnauthenticated
	}

	tenant, err := uuid.Parse(tenantID)
	if err != nil {
		return false, goerrors.New("invalid tenant identifier", goerrors.CategoryBadInput)
	}

	return g.registry.Can(ctx.Context(), principalID, permission, tenant)
}

func (g *Guard) deny(claims AuthClaims, permission Permission, tenantID string) error {
	g.logger.Debug("permission denied",
		"principal", claims.PrincipalID(),
		"permission", string(permission),
		"tenant", tenantID,
	)
	return ErrForbidden.Clone().WithMetadata(map[string]any{
		"permission": string(permission),
		"tenant_id":  tenantID,
	})
}

func (g *Guard) contextKey() string {
	if key := g.cfg.GetContextKey(); key != "" {
		return key
	}
	return "session"
}

// lookupToken walks the configured lookup chain, e.g.
// "header:Authorization,cookie:access_token", returning the first hit.
func (g *Guard) lookupToken(ctx router.Context) (string, error) {
	lookup := g.cfg.GetTokenLookup()
	if lookup == "" {
		lookup = "header:" + router.HeaderAuthorization
	}

	scheme := g.cfg.GetAuthScheme()
	if scheme == "" {
		scheme = "Bearer"
	}

	for _, source := range strings.Split(lookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(source), ":", 2)
		if len(parts) != 2 {
			continue
		}

		name := strings.TrimSpace(parts[1])
		var raw string

		switch strings.TrimSpace(parts[0]) {
		case "header":
			raw = tokenFromHeader(ctx.GetString(name, ""), scheme)
		case "cookie":
			raw = ctx.Cookies(name)
		case "query":
			raw = ctx.Query(name, "")
		case "param":
			raw = ctx.Param(name)
		}

		if raw != "" {
			return raw, nil
		}
	}

	return "", ErrUnauthenticated
}

func tokenFromHeader(value, scheme string) string {
	if value == "" {
		return ""
	}
	l := len(scheme)
	if len(value) > l+1 && strings.EqualFold(value[:l], scheme) {
		return strings.TrimSpace(value[l:])
	}
	return ""
}
