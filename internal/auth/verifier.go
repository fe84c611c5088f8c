package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

type clientRoles struct {
	Roles []string `json:"roles"`
}

// Claims is the validated claim set of a Keycloak access token.
type Claims struct {
	TenantID          string                 `json:"tenant_id,omitempty"`
	PreferredUsername string                 `json:"preferred_username,omitempty"`
	Email             string                 `json:"email,omitempty"`
	Roles             []string               `json:"roles,omitempty"`
	ResourceAccess    map[string]clientRoles `json:"resource_access,omitempty"`
	jwt.RegisteredClaims
}

// clientRoleList returns the nested per-client role block for clientID.
func (c *Claims) clientRoleList(clientID string) []string {
	if access, ok := c.ResourceAccess[clientID]; ok {
		return access.Roles
	}
	return nil
}

type VerifierConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	ClientID string
	Leeway   time.Duration
	KeyTTL   time.Duration // refresh interval of the signing key cache
}

// Verifier validates bearer tokens against the realm's JWKS endpoint.
// Signing keys are cached and refreshed in the background; lookups during
// a refresh see either the old or the new key set.
type Verifier struct {
	cfg    VerifierConfig
	keys   *jwk.Cache
	parser *jwt.Parser
}

// NewVerifier builds a verifier and primes its key cache. A failed initial
// fetch is reported as ErrUpstreamUnavailable.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = time.Hour
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.KeyTTL)); err != nil {
		return nil, fmt.Errorf("register jwks endpoint: %w", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("%w: prime jwks cache: %v", ErrUpstreamUnavailable, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	return &Verifier{cfg: cfg, keys: cache, parser: parser}, nil
}

// Verify parses and validates a raw bearer token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}

	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token missing kid header", ErrInvalidCredential)
		}

		set, err := v.keys.Get(ctx, v.cfg.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch signing keys: %v", ErrUpstreamUnavailable, err)
		}

		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("%w: unknown signing key %q", ErrInvalidCredential, kid)
		}

		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			return nil, fmt.Errorf("%w: unusable signing key %q", ErrInvalidCredential, kid)
		}
		return &pub, nil
	})
	if err != nil {
		if errors.Is(err, ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	// iat and nbf are mandatory on this platform; jwt only validates them
	// when present.
	if claims.IssuedAt == nil || claims.NotBefore == nil {
		return nil, fmt.Errorf("%w: token missing iat or nbf claim", ErrInvalidCredential)
	}

	return claims, nil
}
