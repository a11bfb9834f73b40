package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the decoded view of a validated access credential. It
// is request-scoped data, passed explicitly; nothing here is ambient.
type SessionObject struct {
	PrincipalID    string         `json:"principal_id,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Role           string         `json:"role,omitempty"`
	Audience       []string       `json:"audience,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetPrincipalID() string {
	return s.PrincipalID
}

func (s *SessionObject) GetPrincipalUUID() (uuid.UUID, error) {
	return uuid.Parse(s.PrincipalID)
}

func (s *SessionObject) GetTenantID() string {
	return s.TenantID
}

func (s *SessionObject) GetRole() string {
	return s.Role
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

// Grants checks if the session's role implies the permission
func (s *SessionObject) Grants(permission Permission) bool {
	role, ok := ParseRole(s.Role)
	if !ok {
		return false
	}
	return role.Grants(permission)
}

// IsAtLeast checks if the session's role is at least the minimum role
func (s *SessionObject) IsAtLeast(minRole Role) bool {
	role, ok := ParseRole(s.Role)
	if !ok {
		return false
	}
	return role.IsAtLeast(minRole)
}

// BelongsToTenant reports whether the session is bound to the tenant
func (s *SessionObject) BelongsToTenant(tenantID string) bool {
	return s.TenantID != "" && s.TenantID == tenantID
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"principal=%s tenant=%s role=%s iss=%s iat=%s",
		s.PrincipalID,
		s.TenantID,
		s.Role,
		s.Issuer,
		issuedAt,
	)
}

// SessionFromAuthClaims creates a SessionObject from validated claims
func SessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToDecodeSession
	}

	session := &SessionObject{
		PrincipalID: claims.PrincipalID(),
		TenantID:    claims.TenantID(),
		Role:        claims.Role(),
		Data:        map[string]any{},
	}

	if jwtClaims, ok := claims.(*JWTClaims); ok {
		session.Issuer = jwtClaims.RegisteredClaims.Issuer
		if jwtClaims.RegisteredClaims.Audience != nil {
			session.Audience = append(session.Audience, jwtClaims.RegisteredClaims.Audience...)
		}
		if len(jwtClaims.Metadata) > 0 {
			session.Data["metadata"] = jwtClaims.Metadata
		}
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()
	session.IssuedAt = &issuedAt
	session.ExpirationDate = &expiresAt

	return session, nil
}
