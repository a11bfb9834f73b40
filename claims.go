package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthClaims represents structured access-credential claims. TenantID is
// load-bearing: every permission check is evaluated against it.
type AuthClaims interface {
	Subject() string
	PrincipalID() string
	TenantID() string
	Role() string
	Grants(permission Permission) bool
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string         `json:"uid,omitempty"`
	TID      string         `json:"tid,omitempty"`
	UserRole string         `json:"role,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"` // extension payload
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// PrincipalID returns the principal id, falling back to the subject
func (c *JWTClaims) PrincipalID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// TenantID returns the tenant the session is bound to
func (c *JWTClaims) TenantID() string {
	return c.TID
}

// Role returns the effective role within the bound tenant
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Grants checks if the session's role implies the permission
func (c *JWTClaims) Grants(permission Permission) bool {
	role, ok := ParseRole(c.UserRole)
	if !ok {
		return false
	}
	return role.Grants(permission)
}

// HasRole checks if the session carries the exact role
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the session's role is at least the minimum role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	role, ok := ParseRole(c.UserRole)
	if !ok {
		return false
	}
	return role.IsAtLeast(Role(minRole))
}

// ClaimsMetadata exposes metadata extensions for optional context enrichment.
func (c *JWTClaims) ClaimsMetadata() map[string]any {
	return c.Metadata
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
