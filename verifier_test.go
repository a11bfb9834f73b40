package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/agendly/go-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifierFixture struct {
	tenant   *auth.Tenant
	tenants  *memTenants
	tokens   *memLinkTokens
	users    *memUsers
	roles    *memRoleStore
	registry *auth.RoleRegistry
	verifier *auth.LinkVerifier
	sink     *capturingSink
}

func newVerifierFixture(t *testing.T, users ...*auth.User) *verifierFixture {
	t.Helper()

	tenant := &auth.Tenant{ID: uuid.New(), Slug: "acme-cuts", Name: "Acme Cuts", Status: auth.TenantStatusActive}
	f := &verifierFixture{
		tenant:  tenant,
		tenants: newMemTenants(tenant),
		tokens:  newMemLinkTokens(),
		users:   newMemUsers(users...),
		roles:   newMemRoleStore(),
		sink:    &capturingSink{},
	}
	f.registry = auth.NewRoleRegistry(f.roles)
	f.verifier = auth.NewLinkVerifier(f.tenants, f.tokens, f.users, f.registry).
		WithActivitySink(f.sink)
	return f
}

// mintToken stores a pending token and returns its raw value
func (f *verifierFixture) mintToken(t *testing.T, email string, expiresAt time.Time) string {
	t.Helper()

	raw, err := auth.NewTokenValue()
	require.NoError(t, err)

	_, err = f.tokens.Save(context.Background(), &auth.MagicLinkToken{
		TenantID:  f.tenant.ID,
		Email:     email,
		TokenHash: auth.HashTokenValue(raw),
		Status:    auth.LinkStatusPending,
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)

	return raw
}

func TestVerifyUnknownTenant(t *testing.T) {
	f := newVerifierFixture(t)

	_, err := f.verifier.Verify(context.Background(), "no-such-branch", "whatever")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTenantNotFound))
	assert.True(t, f.sink.has(auth.ActivityEventLinkRejected))
}

func TestVerifyInactiveTenant(t *testing.T) {
	f := newVerifierFixture(t)
	f.tenant.Status = auth.TenantStatusSuspended

	_, err := f.verifier.Verify(context.Background(), "acme-cuts", "whatever")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTenantInactive))
}

func TestVerifyUnknownToken(t *testing.T) {
	f := newVerifierFixture(t)

	_, err := f.verifier.Verify(context.Background(), "acme-cuts", "never-issued")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeLinkNotFound))
	assert.True(t, auth.IsLinkRejection(err))
}

func TestVerifyTenantMismatch(t *testing.T) {
	f := newVerifierFixture(t)

	other := &auth.Tenant{ID: uuid.New(), Slug: "bee-spa", Name: "Bee Spa", Status: auth.TenantStatusActive}
	f.tenants.tenants[other.Slug] = other

	raw := f.mintToken(t, "pat@example.com", time.Now().Add(30*time.Minute))

	_, err := f.verifier.Verify(context.Background(), "bee-spa", raw)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTenantMismatch))
	assert.True(t, auth.IsLinkRejection(err))

	// the token survives a cross tenant attempt and still works at home
	result, err := f.verifier.Verify(context.Background(), "acme-cuts", raw)
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", result.Principal.Email)
}

func TestVerifyExpiredToken(t *testing.T) {
	f := newVerifierFixture(t)

	raw := f.mintToken(t, "pat@example.com", time.Now().Add(-time.Minute))

	_, err := f.verifier.Verify(context.Background(), "acme-cuts", raw)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeLinkExpired))
	assert.True(t, auth.IsLinkRejection(err))

	// lazily marked at rest
	stored, err := f.tokens.GetByHash(context.Background(), auth.HashTokenValue(raw))
	require.NoError(t, err)
	assert.Equal(t, auth.LinkStatusExpired, stored.Status)
}

func TestVerifyConsumedTokenRejectsSecondUse(t *testing.T) {
	f := newVerifierFixture(t)

	raw := f.mintToken(t, "pat@example.com", time.Now().Add(30*time.Minute))

	_, err := f.verifier.Verify(context.Background(), "acme-cuts", raw)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), "acme-cuts", raw)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeLinkConsumed))
	assert.True(t, auth.IsLinkRejection(err))
}

func TestVerifySuspendedPrincipal(t *testing.T) {
	f := newVerifierFixture(t, &auth.User{
		Email:  "pat@example.com",
		Status: auth.UserStatusSuspended,
	})

	raw := f.mintToken(t, "pat@example.com", time.Now().Add(30*time.Minute))

	_, err := f.verifier.Verify(context.Background(), "acme-cuts", raw)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeForbidden))
	assert.False(t, auth.IsLinkRejection(err), "suspension is a distinct refusal, not a link failure")
}

func TestVerifyProvisionsUnknownPrincipal(t *testing.T) {
	f := newVerifierFixture(t)

	raw := f.mintToken(t, "new@example.com", time.Now().Add(30*time.Minute))

	result, err := f.verifier.Verify(context.Background(), "acme-cuts", raw)
	require.NoError(t, err)
	require.NotNil(t, result.Principal)
	assert.Equal(t, "new@example.com", result.Principal.Email)
	assert.Equal(t, auth.UserStatusActive, result.Principal.Status)

	// fresh principals start as customers of the branch they arrived at
	can, err := f.registry.Can(context.Background(), result.Principal.ID, auth.PermissionBookAppointment, f.tenant.ID)
	require.NoError(t, err)
	assert.True(t, can)

	assert.True(t, f.sink.has(auth.ActivityEventPrincipalProvisoned))
	assert.True(t, f.sink.has(auth.ActivityEventLinkConsumed))
}

func TestVerifyTracksSuccessfulLogin(t *testing.T) {
	pat := &auth.User{ID: uuid.New(), Email: "pat@example.com", Status: auth.UserStatusActive}
	f := newVerifierFixture(t, pat)

	raw := f.mintToken(t, "pat@example.com", time.Now().Add(30*time.Minute))

	_, err := f.verifier.Verify(context.Background(), "acme-cuts", raw)
	require.NoError(t, err)

	stored, err := f.users.GetByUUID(context.Background(), pat.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LoggedInAt)
	assert.WithinDuration(t, time.Now(), *stored.LoggedInAt, time.Minute)
}

func TestVerifyExistingPrincipalKeepsRoles(t *testing.T) {
	staff := &auth.User{ID: uuid.New(), Email: "staff@example.com", Status: auth.UserStatusActive}
	f := newVerifierFixture(t, staff)

	tenantID := f.tenant.ID
	_, err := f.registry.Assign(context.Background(), staff.ID, auth.RoleStaff, &tenantID)
	require.NoError(t, err)

	raw := f.mintToken(t, "staff@example.com", time.Now().Add(30*time.Minute))

	result, err := f.verifier.Verify(context.Background(), "acme-cuts", raw)
	require.NoError(t, err)
	assert.Equal(t, staff.ID, result.Principal.ID)

	assignments, err := f.roles.FindForPrincipal(context.Background(), staff.ID)
	require.NoError(t, err)
	assert.Len(t, assignments, 1, "no extra grant for an already known principal")
	assert.False(t, f.sink.has(auth.ActivityEventPrincipalProvisoned))
}

func TestVerifyConcurrentUseHasExactlyOneWinner(t *testing.T) {
	f := newVerifierFixture(t, &auth.User{Email: "pat@example.com", Status: auth.UserStatusActive})

	raw := f.mintToken(t, "pat@example.com", time.Now().Add(30*time.Minute))

	const attempts = 32
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for n := 0; n < attempts; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, results[n] = f.verifier.Verify(context.Background(), "acme-cuts", raw)
		}(n)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, auth.HasTextCode(err, auth.TextCodeLinkConsumed))
	}
	assert.Equal(t, 1, wins)
}
