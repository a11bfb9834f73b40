package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	auth "github.com/agendly/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewLinkIssuerRequiresDependencies(t *testing.T) {
	cfg := newTestConfig()

	_, err := auth.NewLinkIssuer(nil, newMemLinkTokens(), nil, cfg)
	assert.Error(t, err)

	_, err = auth.NewLinkIssuer(newMemTenants(), nil, nil, cfg)
	assert.Error(t, err)

	_, err = auth.NewLinkIssuer(newMemTenants(), newMemLinkTokens(), nil, nil)
	assert.Error(t, err)
}

func TestNewLinkIssuerRejectsDevEchoInProduction(t *testing.T) {
	cfg := newTestConfig()
	cfg.environment = auth.EnvProduction

	_, err := auth.NewLinkIssuer(newMemTenants(), newMemLinkTokens(), nil, cfg,
		auth.WithDevLinkEcho(),
	)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
	assert.Equal(t, auth.EnvProduction, richErr.Metadata["environment"])
}

func TestIssueValidatesRequest(t *testing.T) {
	issuer, err := auth.NewLinkIssuer(newMemTenants(), newMemLinkTokens(), nil, newTestConfig())
	require.NoError(t, err)

	tests := []struct {
		name string
		req  auth.IssueLinkRequest
	}{
		{"missing tenant", auth.IssueLinkRequest{Email: "pat@example.com"}},
		{"missing email", auth.IssueLinkRequest{TenantSlug: "acme-cuts"}},
		{"malformed email", auth.IssueLinkRequest{TenantSlug: "acme-cuts", Email: "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Issue(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestIssueUnknownTenant(t *testing.T) {
	issuer, err := auth.NewLinkIssuer(newMemTenants(), newMemLinkTokens(), nil, newTestConfig())
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), auth.IssueLinkRequest{
		TenantSlug: "no-such-branch",
		Email:      "pat@example.com",
	})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTenantNotFound))
}

func TestIssueInactiveTenant(t *testing.T) {
	tenants := newMemTenants(&auth.Tenant{Slug: "acme-cuts", Name: "Acme Cuts", Status: auth.TenantStatusSuspended})
	issuer, err := auth.NewLinkIssuer(tenants, newMemLinkTokens(), nil, newTestConfig())
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), auth.IssueLinkRequest{
		TenantSlug: "acme-cuts",
		Email:      "pat@example.com",
	})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTenantInactive))
}

func TestIssueStoresPendingTokenAndDelivers(t *testing.T) {
	tenants := newMemTenants(&auth.Tenant{Slug: "acme-cuts", Name: "Acme Cuts", Status: auth.TenantStatusActive})
	tokens := newMemLinkTokens()
	sink := &capturingSink{}

	var delivered auth.VerificationReference
	delivery := auth.LinkDeliveryFunc(func(_ context.Context, tenant *auth.Tenant, ref auth.VerificationReference) error {
		require.NotNil(t, tenant)
		delivered = ref
		return nil
	})

	issuer, err := auth.NewLinkIssuer(tenants, tokens, delivery, newTestConfig(),
		auth.WithIssuerActivitySink(sink),
	)
	require.NoError(t, err)

	result, err := issuer.Issue(context.Background(), auth.IssueLinkRequest{
		TenantSlug: "acme-cuts",
		Email:      "pat@example.com",
	})
	require.NoError(t, err)

	assert.True(t, result.Delivered)
	assert.Empty(t, result.Link, "raw link must not echo without the dev option")
	assert.Equal(t, "pat@example.com", result.Email)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), result.ExpiresAt, 5*time.Second)

	// the delivery channel saw the raw value; the store only holds its hash
	require.NotEmpty(t, delivered.Token)
	stored, err := tokens.GetByHash(context.Background(), auth.HashTokenValue(delivered.Token))
	require.NoError(t, err)
	assert.Equal(t, auth.LinkStatusPending, stored.Status)
	assert.Equal(t, "pat@example.com", stored.Email)
	assert.NotEqual(t, delivered.Token, stored.TokenHash)

	assert.True(t, sink.has(auth.ActivityEventLinkIssued))
}

func TestIssueDevEchoReturnsRawLink(t *testing.T) {
	tenants := newMemTenants(&auth.Tenant{Slug: "acme-cuts", Name: "Acme Cuts", Status: auth.TenantStatusActive})
	tokens := newMemLinkTokens()

	issuer, err := auth.NewLinkIssuer(tenants, tokens, nil, newTestConfig(),
		auth.WithDevLinkEcho(),
	)
	require.NoError(t, err)

	result, err := issuer.Issue(context.Background(), auth.IssueLinkRequest{
		TenantSlug: "acme-cuts",
		Email:      "pat@example.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Link)

	stored, err := tokens.GetByHash(context.Background(), auth.HashTokenValue(result.Link))
	require.NoError(t, err)
	assert.Equal(t, auth.LinkStatusPending, stored.Status)
}

func TestIssueReportsDeliveryFailureOnResult(t *testing.T) {
	tenants := newMemTenants(&auth.Tenant{Slug: "acme-cuts", Name: "Acme Cuts", Status: auth.TenantStatusActive})
	sink := &capturingSink{}

	delivery := auth.LinkDeliveryFunc(func(context.Context, *auth.Tenant, auth.VerificationReference) error {
		return errors.New("smtp unavailable")
	})

	issuer, err := auth.NewLinkIssuer(tenants, newMemLinkTokens(), delivery, newTestConfig(),
		auth.WithIssuerActivitySink(sink),
	)
	require.NoError(t, err)

	result, err := issuer.Issue(context.Background(), auth.IssueLinkRequest{
		TenantSlug: "acme-cuts",
		Email:      "pat@example.com",
	})
	require.NoError(t, err, "delivery failure is secondary, issuance already succeeded")
	assert.False(t, result.Delivered)
	require.True(t, sink.has(auth.ActivityEventLinkDeliveryFailed))

	for _, event := range sink.all() {
		if event.EventType != auth.ActivityEventLinkDeliveryFailed {
			continue
		}
		assert.Equal(t, auth.TextCodeDeliveryFailed, event.Metadata["code"])
		assert.Equal(t, "smtp unavailable", event.Metadata["error"])
	}
}

func TestIssueThrottlesRepeatedRequests(t *testing.T) {
	tenants := newMemTenants(&auth.Tenant{Slug: "acme-cuts", Name: "Acme Cuts", Status: auth.TenantStatusActive})

	issuer, err := auth.NewLinkIssuer(tenants, newMemLinkTokens(), nil, newTestConfig(),
		auth.WithIssuanceRate(rate.Every(time.Hour), 1),
	)
	require.NoError(t, err)

	req := auth.IssueLinkRequest{TenantSlug: "acme-cuts", Email: "pat@example.com"}

	_, err = issuer.Issue(context.Background(), req)
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), req)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTooManyRequests))

	// per (tenant, email) key: a different address is not throttled
	_, err = issuer.Issue(context.Background(), auth.IssueLinkRequest{
		TenantSlug: "acme-cuts",
		Email:      "sam@example.com",
	})
	assert.NoError(t, err)
}
