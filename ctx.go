package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var principalCtxKey = &contextKey{"principal"}
var claimsCtxKey = &contextKey{"claims"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithPrincipalContext sets the resolved principal in the given context
func WithPrincipalContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, principalCtxKey, user)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithSessionContext sets the decoded SessionObject in the given context
func WithSessionContext(r context.Context, session *SessionObject) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext finds the decoded session from the context.
func SessionFromContext(ctx context.Context) (*SessionObject, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*SessionObject)
	return raw, ok
}

// GetRouterClaims returns the validated claims stored by the guard
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, error) {
	if key == "" {
		key = "session"
	}

	raw := ctx.Locals(key)
	if raw == nil {
		return nil, ErrUnableToFindSession
	}

	claims, ok := raw.(AuthClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	return claims, nil
}

// Can is a convenience permission check against the claims in the context.
// The check is tenant-bound: it only answers for the tenant the session
// was minted for.
func Can(ctx context.Context, permission Permission, tenantID string) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}

	if tenantID != "" && claims.TenantID() != tenantID {
		// a global role still clears a foreign-tenant check
		role, valid := ParseRole(claims.Role())
		if !valid || !role.IsGlobal() {
			return false
		}
	}

	return claims.Grants(permission)
}

// CanFromRouter is the router-context variant of Can
func CanFromRouter(ctx router.Context, key string, permission Permission, tenantID string) bool {
	claims, err := GetRouterClaims(ctx, key)
	if err != nil {
		return false
	}

	if tenantID != "" && claims.TenantID() != tenantID {
		role, valid := ParseRole(claims.Role())
		if !valid || !role.IsGlobal() {
			return false
		}
	}

	return claims.Grants(permission)
}
