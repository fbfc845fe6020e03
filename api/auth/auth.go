// Package auth verifies Auth0-issued bearer tokens against the tenant's
// published JSON Web Key Set.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for a missing, malformed or rejected token.
var ErrUnauthorized = errors.New("unauthorized")

// Config configures a Verifier.
type Config struct {
	// Domain is the Auth0 tenant domain, e.g. "example.us.auth0.com".
	Domain string

	// Audience is the API identifier tokens must be issued for.
	Audience string

	// JWKSURL overrides the key set location. Defaults to
	// https://{Domain}/.well-known/jwks.json.
	JWKSURL string

	Logger *slog.Logger
}

// Verifier validates RS256 bearer tokens.
//
// The key set is fetched when the Verifier is created and refreshed hourly
// until ctx ends. A token naming an unknown key id refreshes it at most once
// every five minutes; other unknown ids inside that window are rejected
// without a fetch.
type Verifier struct {
	issuer   string
	audience string
	keys     keyfunc.Keyfunc
	logger   *slog.Logger
}

// New creates a Verifier. ctx bounds the background key set refresh.
func New(ctx context.Context, c Config) (*Verifier, error) {
	if c.Domain == "" {
		return nil, errors.New("auth domain is required")
	}
	if c.Audience == "" {
		return nil, errors.New("auth audience is required")
	}

	domain := strings.TrimSuffix(strings.TrimPrefix(c.Domain, "https://"), "/")

	jwksURL := c.JWKSURL
	if jwksURL == "" {
		jwksURL = "https://" + domain + "/.well-known/jwks.json"
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("loading jwks from %s: %w", jwksURL, err)
	}
	logger.Debug("jwks client ready", "url", jwksURL)

	return &Verifier{
		issuer:   "https://" + domain + "/",
		audience: c.Audience,
		keys:     keys,
		logger:   logger,
	}, nil
}

// Verify parses and validates token, returning its registered claims.
// Every failure wraps ErrUnauthorized.
func (v *Verifier) Verify(_ context.Context, token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, v.keys.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		v.logger.Debug("token rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return strings.TrimSpace(token), nil
}
