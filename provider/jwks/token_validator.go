// Package jwks validates access tokens signed by an external identity
// provider that publishes its keys as a JWK Set.
package jwks

import (
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/agendly/go-auth"
)

// Config describes the remote key set and the expected token shape
type Config struct {
	JWKSetURLs      []string
	Issuer          string
	Audience        []string
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
}

// TokenValidator validates RS256 tokens against a remote JWK Set
type TokenValidator struct {
	config Config
	jwks   *keyfunc.JWKS
	multi  *keyfunc.MultipleJWKS
}

// NewTokenValidator fetches the key sets and starts their background
// refresh.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	if len(cfg.JWKSetURLs) == 0 {
		return nil, fmt.Errorf("jwks: at least one JWK Set URL is required")
	}

	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}

	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}

	opts := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("jwks: background key refresh failed: %s", err)
		},
		RefreshInterval:   cfg.RefreshInterval,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    cfg.RefreshTimeout,
		RefreshUnknownKID: true,
	}

	if len(cfg.JWKSetURLs) > 1 {
		m := make(map[string]keyfunc.Options, len(cfg.JWKSetURLs))
		for _, u := range cfg.JWKSetURLs {
			m[u] = opts
		}
		multi, err := keyfunc.GetMultiple(m, keyfunc.MultipleOptions{
			KeySelector: keyfunc.KeySelectorFirst,
		})
		if err != nil {
			return nil, fmt.Errorf("jwks: failed to fetch key sets: %w", err)
		}
		return &TokenValidator{config: cfg, multi: multi}, nil
	}

	set, err := keyfunc.Get(cfg.JWKSetURLs[0], opts)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to fetch key set: %w", err)
	}

	return &TokenValidator{config: cfg, jwks: set}, nil
}

// Validate implements auth.TokenValidator
func (v *TokenValidator) Validate(tokenString string) (auth.AuthClaims, error) {
	claims := &auth.JWTClaims{}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
	}
	if v.config.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.config.Issuer))
	}
	for _, aud := range v.config.Audience {
		parserOpts = append(parserOpts, jwt.WithAudience(aud))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc(), parserOpts...)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	if !token.Valid {
		return nil, auth.ErrTokenMalformed
	}

	return claims, nil
}

func (v *TokenValidator) keyfunc() jwt.Keyfunc {
	if v.multi != nil {
		return v.multi.Keyfunc
	}
	return v.jwks.Keyfunc
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	clone := auth.ErrTokenMalformed.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = auth.ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": "jwks",
		"cause":    err.Error(),
	})
}
