package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes give callers a stable machine-readable discriminator that
// survives message rewording.
const (
	TextCodeLinkNotFound    = "LINK_NOT_FOUND"
	TextCodeTenantMismatch  = "LINK_TENANT_MISMATCH"
	TextCodeLinkExpired     = "LINK_EXPIRED"
	TextCodeLinkConsumed    = "LINK_CONSUMED"
	TextCodeInvalidRefresh  = "INVALID_REFRESH"
	TextCodeUnauthenticated = "UNAUTHENTICATED"
	TextCodeForbidden       = "FORBIDDEN"
	TextCodeDeliveryFailed  = "DELIVERY_FAILED"
	TextCodeTooManyRequests = "TOO_MANY_REQUESTS"
	TextCodeTenantNotFound  = "TENANT_NOT_FOUND"
	TextCodeTenantInactive  = "TENANT_INACTIVE"
	TextCodeInvalidScope    = "INVALID_ROLE_SCOPE"
	TextCodeTokenExpired    = "TOKEN_EXPIRED"
	TextCodeTokenMalformed  = "TOKEN_MALFORMED"
)

// ErrLinkNotFound is returned when no token matches the presented value
var ErrLinkNotFound = goerrors.New("magic link token not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeLinkNotFound)

// ErrTenantMismatch is returned when a token is presented against a tenant
// other than the one it was issued for
var ErrTenantMismatch = goerrors.New("magic link token belongs to a different tenant", goerrors.CategoryAuth).
	WithTextCode(TextCodeTenantMismatch)

// ErrLinkExpired is returned when a token is presented past its expiry instant
var ErrLinkExpired = goerrors.New("magic link token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeLinkExpired)

// ErrLinkConsumed is returned when a token has already been consumed
var ErrLinkConsumed = goerrors.New("magic link token already consumed", goerrors.CategoryAuth).
	WithTextCode(TextCodeLinkConsumed)

// ErrInvalidRefresh is returned for unknown, expired, revoked, or
// already-rotated refresh credentials
var ErrInvalidRefresh = goerrors.New("refresh credential is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefresh)

// ErrUnauthenticated is returned when no valid session is present at all
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when a valid session lacks the required role or
// permission for the tenant
var ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden)

// ErrDeliveryFailed reports a link delivery failure. Issuance already
// succeeded by the time this surfaces; it is secondary, never fatal.
var ErrDeliveryFailed = goerrors.New("unable to deliver magic link", goerrors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed)

// ErrTooManyRequests throttles repeated issuance for the same tenant/email
var ErrTooManyRequests = goerrors.New("too many magic link requests", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyRequests)

// ErrTenantNotFound is returned when the tenant identifier resolves to nothing
var ErrTenantNotFound = goerrors.New("tenant not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTenantNotFound)

// ErrTenantInactive is returned when the tenant exists but is not active
var ErrTenantInactive = goerrors.New("tenant is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeTenantInactive)

// ErrInvalidRoleScope rejects tenant-scoped roles without a tenant and
// global roles submitted with one
var ErrInvalidRoleScope = goerrors.New("role scope does not match tenant argument", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidScope)

// ErrTokenExpired is returned for expired access credentials
var ErrTokenExpired = goerrors.New("access token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed is returned for access credentials that fail to parse
var ErrTokenMalformed = goerrors.New("access token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed)

// ErrUnableToFindSession is the error when a request carries no credential
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode("SESSION_NOT_FOUND")

// ErrUnableToDecodeSession is returned when claims cannot be decoded
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode("SESSION_DECODE_ERROR")

// GenericLinkFailureMessage is what end users see for every link rejection.
// TenantMismatch, Expired, Consumed, and NotFound must be indistinguishable
// in user-facing copy; they remain distinct errors for diagnostics.
const GenericLinkFailureMessage = "invalid or expired link"

// HasTextCode reports whether err carries the given machine readable
// code. Works across Clone and WithMetadata derived copies, where value
// identity comparisons break.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsLinkRejection reports whether err is one of the verification failures
// that collapse into GenericLinkFailureMessage.
func IsLinkRejection(err error) bool {
	if err == nil {
		return false
	}
	return HasTextCode(err, TextCodeLinkNotFound) ||
		HasTextCode(err, TextCodeTenantMismatch) ||
		HasTextCode(err, TextCodeLinkExpired) ||
		HasTextCode(err, TextCodeLinkConsumed)
}

// IsTokenExpiredError will check for expired access tokens, including
// errors surfaced by the underlying JWT library.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for malformed-token errors.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
