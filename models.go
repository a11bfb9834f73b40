package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TenantStatus is the tenant's lifecycle status
type TenantStatus = string

const (
	// TenantStatusActive accepts issuance and verification
	TenantStatusActive TenantStatus = "active"
	// TenantStatusSuspended rejects all auth operations
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant is the isolation boundary for a customer branch. Every token,
// session, and tenant-scoped role assignment carries a tenant id.
type Tenant struct {
	bun.BaseModel `bun:"table:tenants,alias:tnt"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Slug          string       `bun:"slug,notnull,unique" json:"slug,omitempty"`
	Name          string       `bun:"name,notnull" json:"name,omitempty"`
	Status        TenantStatus `bun:"status,notnull" json:"status,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time   `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsActive reports whether the tenant accepts auth operations
func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == TenantStatusActive
}

// UserStatus is the principal's account status
type UserStatus = string

const (
	// UserStatusActive can authenticate
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended is blocked from authenticating
	UserStatusSuspended UserStatus = "suspended"
)

// User is an authenticatable principal: staff or end customer. There is no
// password column anywhere; identity is proven by link consumption only.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName     string         `bun:"first_name" json:"first_name,omitempty"`
	LastName      string         `bun:"last_name" json:"last_name,omitempty"`
	Phone         string         `bun:"phone_number" json:"phone_number,omitempty"`
	Status        UserStatus     `bun:"status,notnull" json:"status,omitempty"`
	LoggedInAt    *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus defaults new users to active
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// LinkStatus is the consumption state of a magic link token
type LinkStatus = string

const (
	// LinkStatusPending has not been consumed or expired yet
	LinkStatusPending LinkStatus = "pending"
	// LinkStatusConsumed has been exchanged for a session, exactly once
	LinkStatusConsumed LinkStatus = "consumed"
	// LinkStatusExpired lapsed before consumption; marked lazily on read
	LinkStatusExpired LinkStatus = "expired"
)

// MagicLinkToken is the durable record of an outstanding magic link. The
// raw value is never stored; TokenHash holds its BLAKE2b-256 digest.
// A consumed or expired token can never return to pending.
type MagicLinkToken struct {
	bun.BaseModel `bun:"table:magic_link_tokens,alias:mlt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TenantID      uuid.UUID  `bun:"tenant_id,notnull,type:uuid" json:"tenant_id,omitempty"`
	Tenant        *Tenant    `bun:"rel:has-one,join:tenant_id=id" json:"tenant,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	Status        LinkStatus `bun:"status,notnull" json:"status,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsExpiredAt reports whether the token lapsed at the given instant
func (t *MagicLinkToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RefreshToken is the durable, revocable half of a credential pair. Tokens
// sharing a FamilyID descend from one verification; Generation increments
// on every rotation. RotatedAt set means the token was already exchanged
// and any further presentation is a reuse signal.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FamilyID      uuid.UUID  `bun:"family_id,notnull,type:uuid" json:"family_id,omitempty"`
	PrincipalID   uuid.UUID  `bun:"principal_id,notnull,type:uuid" json:"principal_id,omitempty"`
	TenantID      uuid.UUID  `bun:"tenant_id,notnull,type:uuid" json:"tenant_id,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	Generation    int        `bun:"generation,notnull" json:"generation,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	RotatedAt     *time.Time `bun:"rotated_at,nullzero" json:"rotated_at,omitempty"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsExpiredAt reports whether the refresh credential lapsed at the instant
func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RoleAssignment grants a principal a role, optionally scoped to a tenant.
// TenantID is nil only for global roles; the registry rejects every other
// combination at assignment time.
type RoleAssignment struct {
	bun.BaseModel `bun:"table:role_assignments,alias:rla"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	PrincipalID   uuid.UUID  `bun:"principal_id,notnull,type:uuid" json:"principal_id,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role,omitempty"`
	TenantID      *uuid.UUID `bun:"tenant_id,nullzero,type:uuid" json:"tenant_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AppliesTo reports whether this assignment is effective in the tenant:
// either it is a global grant or it is scoped to this exact tenant.
func (a *RoleAssignment) AppliesTo(tenantID uuid.UUID) bool {
	if a.Role.IsGlobal() {
		return true
	}
	return a.TenantID != nil && *a.TenantID == tenantID
}
