package auth_test

import (
	"errors"
	"testing"

	auth "github.com/agendly/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestIsLinkRejection(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "link not found",
			err:      auth.ErrLinkNotFound,
			expected: true,
		},
		{
			name:     "tenant mismatch",
			err:      auth.ErrTenantMismatch,
			expected: true,
		},
		{
			name:     "link expired",
			err:      auth.ErrLinkExpired,
			expected: true,
		},
		{
			name:     "link consumed",
			err:      auth.ErrLinkConsumed,
			expected: true,
		},
		{
			name:     "forbidden is not a link failure",
			err:      auth.ErrForbidden,
			expected: false,
		},
		{
			name:     "tenant not found is not a link failure",
			err:      auth.ErrTenantNotFound,
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsLinkRejection(tt.err))
		})
	}
}

func TestIsTokenExpiredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "structured token expired error",
			err:      auth.ErrTokenExpired,
			expected: true,
		},
		{
			name:     "legacy token expired error (string match)",
			err:      errors.New("some wrapper: token is expired"),
			expected: true,
		},
		{
			name:     "different structured error",
			err:      auth.ErrLinkNotFound,
			expected: false,
		},
		{
			name:     "different legacy error",
			err:      errors.New("invalid token"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsTokenExpiredError(tt.err))
		})
	}
}

func TestIsMalformedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "structured malformed error",
			err:      auth.ErrTokenMalformed,
			expected: true,
		},
		{
			name:     "legacy malformed error (string match)",
			err:      errors.New("token is malformed"),
			expected: true,
		},
		{
			name:     "legacy missing JWT error (string match)",
			err:      errors.New("missing or malformed JWT"),
			expected: true,
		},
		{
			name:     "different legacy error",
			err:      errors.New("invalid token"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsMalformedError(tt.err))
		})
	}
}

func TestStructuredErrorProperties(t *testing.T) {
	t.Run("ErrLinkNotFound", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryNotFound, auth.ErrLinkNotFound.Category)
		assert.Equal(t, auth.TextCodeLinkNotFound, auth.ErrLinkNotFound.TextCode)
	})

	t.Run("ErrTenantMismatch", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, auth.ErrTenantMismatch.Category)
		assert.Equal(t, auth.TextCodeTenantMismatch, auth.ErrTenantMismatch.TextCode)
	})

	t.Run("ErrInvalidRefresh", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, auth.ErrInvalidRefresh.Category)
		assert.Equal(t, auth.TextCodeInvalidRefresh, auth.ErrInvalidRefresh.TextCode)
	})

	t.Run("ErrUnauthenticated", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, auth.ErrUnauthenticated.Category)
		assert.Equal(t, auth.TextCodeUnauthenticated, auth.ErrUnauthenticated.TextCode)
	})

	t.Run("ErrForbidden", func(t *testing.T) {
		// authorization failures must stay distinct from authentication ones
		assert.Equal(t, goerrors.CategoryAuthz, auth.ErrForbidden.Category)
		assert.Equal(t, auth.TextCodeForbidden, auth.ErrForbidden.TextCode)
	})

	t.Run("ErrTooManyRequests", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryRateLimit, auth.ErrTooManyRequests.Category)
		assert.Equal(t, auth.TextCodeTooManyRequests, auth.ErrTooManyRequests.TextCode)
	})

	t.Run("ErrInvalidRoleScope", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryValidation, auth.ErrInvalidRoleScope.Category)
		assert.Equal(t, auth.TextCodeInvalidScope, auth.ErrInvalidRoleScope.TextCode)
	})
}

func TestGenericLinkFailureMessageStaysOpaque(t *testing.T) {
	// diagnostics differ, user-facing copy must not
	for _, err := range []error{
		auth.ErrLinkNotFound,
		auth.ErrTenantMismatch,
		auth.ErrLinkExpired,
		auth.ErrLinkConsumed,
	} {
		assert.True(t, auth.IsLinkRejection(err))
		assert.NotEqual(t, auth.GenericLinkFailureMessage, err.Error(),
			"internal errors keep their diagnostic text; only the edge collapses them")
	}
}
