package auth_test

import (
	"context"
	"sync"
	"time"

	auth "github.com/agendly/go-auth"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// testConfig implements auth.Config with deterministic defaults
type testConfig struct {
	signingKey  string
	environment string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	linkTTL     time.Duration
	tokenLookup string
	contextKey  string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:  "test-signing-key",
		environment: "test",
		accessTTL:   15 * time.Minute,
		refreshTTL:  30 * 24 * time.Hour,
		linkTTL:     30 * time.Minute,
		tokenLookup: "header:Authorization",
		contextKey:  "auth_claims",
	}
}

func (c *testConfig) GetSigningKey() string { return c.signingKey }
func (c *testConfig) GetSigningMethod() string { return "HS256" }
func (c *testConfig) GetContextKey() string { return c.contextKey }
func (c *testConfig) GetTokenLookup() string { return c.tokenLookup }
func (c *testConfig) GetAuthScheme() string { return "Bearer" }
func (c *testConfig) GetIssuer() string { return "test-issuer" }
func (c *testConfig) GetAudience() []string { return []string{"test-app"} }
func (c *testConfig) GetEnvironment() string { return c.environment }
func (c *testConfig) GetAccessTokenExpiration() time.Duration { return c.accessTTL }
func (c *testConfig) GetRefreshTokenExpiration() time.Duration { return c.refreshTTL }
func (c *testConfig) GetLinkTokenExpiration() time.Duration { return c.linkTTL }

// capturingSink records every activity event for assertions
type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *capturingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) has(eventType auth.ActivityEventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

func (s *capturingSink) all() []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func notFoundErr(msg string) error {
	return goerrors.New(msg, goerrors.CategoryNotFound)
}

// memTenants is an in-memory TenantStore keyed by slug
type memTenants struct {
	mu      sync.Mutex
	tenants map[string]*auth.Tenant
}

func newMemTenants(tenants ...*auth.Tenant) *memTenants {
	m := &memTenants{tenants: map[string]*auth.Tenant{}}
	for _, t := range tenants {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		m.tenants[t.Slug] = t
	}
	return m
}

func (m *memTenants) GetBySlug(_ context.Context, slug string) (*auth.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.tenants[slug]
	if !ok {
		return nil, notFoundErr("tenant not found")
	}
	return tenant, nil
}

// memLinkTokens is an in-memory LinkTokenStore with the same conditional
// consume semantics the SQL store provides
type memLinkTokens struct {
	mu     sync.Mutex
	byHash map[string]*auth.MagicLinkToken
}

func newMemLinkTokens() *memLinkTokens {
	return &memLinkTokens{byHash: map[string]*auth.MagicLinkToken{}}
}

func (m *memLinkTokens) Save(_ context.Context, token *auth.MagicLinkToken) (*auth.MagicLinkToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.Status == "" {
		token.Status = auth.LinkStatusPending
	}
	m.byHash[token.TokenHash] = token
	return token, nil
}

func (m *memLinkTokens) GetByHash(_ context.Context, hash string) (*auth.MagicLinkToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byHash[hash]
	if !ok {
		return nil, notFoundErr("magic link token not found")
	}
	clone := *token
	return &clone, nil
}

func (m *memLinkTokens) Consume(_ context.Context, hash string, at time.Time) (*auth.MagicLinkToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrLinkNotFound
	}
	if token.Status != auth.LinkStatusPending {
		return nil, auth.ErrLinkConsumed
	}
	token.Status = auth.LinkStatusConsumed
	token.ConsumedAt = &at
	clone := *token
	return &clone, nil
}

func (m *memLinkTokens) MarkExpired(_ context.Context, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byHash[hash]
	if !ok {
		return notFoundErr("magic link token not found")
	}
	token.Status = auth.LinkStatusExpired
	return nil
}

// memUsers is an in-memory PrincipalStore
type memUsers struct {
	mu      sync.Mutex
	byEmail map[string]*auth.User
	byID    map[uuid.UUID]*auth.User
}

func newMemUsers(users ...*auth.User) *memUsers {
	m := &memUsers{
		byEmail: map[string]*auth.User{},
		byID:    map[uuid.UUID]*auth.User{},
	}
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		u.EnsureStatus()
		m.byEmail[u.Email] = u
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byEmail[email]
	if !ok {
		return nil, notFoundErr("user not found")
	}
	return user, nil
}

func (m *memUsers) GetByUUID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return nil, notFoundErr("user not found")
	}
	return user, nil
}

func (m *memUsers) TrackLogin(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return notFoundErr("user not found")
	}
	now := time.Now()
	user.LoggedInAt = &now
	return nil
}

func (m *memUsers) GetOrProvision(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	user := &auth.User{
		ID:     uuid.New(),
		Email:  email,
		Status: auth.UserStatusActive,
	}
	m.byEmail[email] = user
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, user *auth.User, _ ...repository.UpdateCriteria) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
	return user, nil
}

// memRoleStore is an in-memory RoleAssignmentStore
type memRoleStore struct {
	mu          sync.Mutex
	assignments []*auth.RoleAssignment
}

func newMemRoleStore() *memRoleStore {
	return &memRoleStore{}
}

func (m *memRoleStore) Save(_ context.Context, assignment *auth.RoleAssignment) (*auth.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}
	m.assignments = append(m.assignments, assignment)
	return assignment, nil
}

func (m *memRoleStore) SaveTx(ctx context.Context, _ bun.IDB, assignment *auth.RoleAssignment) (*auth.RoleAssignment, error) {
	return m.Save(ctx, assignment)
}

func (m *memRoleStore) FindForPrincipal(_ context.Context, principalID uuid.UUID) ([]*auth.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auth.RoleAssignment
	for _, a := range m.assignments {
		if a.PrincipalID == principalID {
			out = append(out, a)
		}
	}
	return out, nil
}

// memRefresh is an in-memory RefreshTokenStore with conditional rotation
type memRefresh struct {
	mu     sync.Mutex
	byHash map[string]*auth.RefreshToken
	byID   map[uuid.UUID]*auth.RefreshToken
}

func newMemRefresh() *memRefresh {
	return &memRefresh{
		byHash: map[string]*auth.RefreshToken{},
		byID:   map[uuid.UUID]*auth.RefreshToken{},
	}
}

func (m *memRefresh) Save(_ context.Context, token *auth.RefreshToken) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	m.byHash[token.TokenHash] = token
	m.byID[token.ID] = token
	return token, nil
}

func (m *memRefresh) GetByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byHash[hash]
	if !ok {
		return nil, notFoundErr("refresh token not found")
	}
	clone := *token
	return &clone, nil
}

func (m *memRefresh) Rotate(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	if token.RotatedAt != nil || token.RevokedAt != nil {
		return false, nil
	}
	token.RotatedAt = &at
	return true, nil
}

func (m *memRefresh) RevokeFamily(_ context.Context, familyID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.byID {
		if token.FamilyID == familyID && token.RevokedAt == nil {
			token.RevokedAt = &at
		}
	}
	return nil
}

func (m *memRefresh) RevokeForPrincipal(_ context.Context, principalID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.byID {
		if token.PrincipalID == principalID && token.RevokedAt == nil {
			token.RevokedAt = &at
		}
	}
	return nil
}
