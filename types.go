package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated principal
type Identity interface {
	ID() string
	Email() string
	Role() string
}

// Session is the decoded, self-verifying view of an access credential
type Session interface {
	GetPrincipalID() string
	GetPrincipalUUID() (uuid.UUID, error)
	GetTenantID() string
	GetRole() string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetData() map[string]any
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetEnvironment() string
	GetAccessTokenExpiration() time.Duration
	GetRefreshTokenExpiration() time.Duration
	GetLinkTokenExpiration() time.Duration
}

// EnvProduction is the environment name for production deployments. The
// dev-only link echo refuses to enable under it.
const EnvProduction = "production"

// VerificationReference carries everything a delivery channel needs to
// construct the user-facing magic link. Token is the raw value; it exists
// only in flight, never at rest.
type VerificationReference struct {
	TenantSlug string
	Email      string
	Token      string
	ExpiresAt  time.Time
}

// LinkDelivery is the external capability that carries a magic link to the
// user. The core does not know or care how the message travels.
type LinkDelivery interface {
	Deliver(ctx context.Context, tenant *Tenant, ref VerificationReference) error
}

// LinkDeliveryFunc adapts a function into a LinkDelivery.
type LinkDeliveryFunc func(ctx context.Context, tenant *Tenant, ref VerificationReference) error

// Deliver satisfies the LinkDelivery interface.
func (f LinkDeliveryFunc) Deliver(ctx context.Context, tenant *Tenant, ref VerificationReference) error {
	if f == nil {
		return nil
	}
	return f(ctx, tenant, ref)
}

// TokenService signs and validates access credentials
type TokenService interface {
	Generate(identity Identity, tenantID string) (string, time.Time, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
