// Package api provides the HTTP API Tana commands call to upsert, query and
// delete nodes in the vector store.
package api

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/papercomputeco/tana-helper/pkg/config"
)

// DefaultCORSOrigin is the Tana web app origin.
const DefaultCORSOrigin = "https://app.tana.inc"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:4000")
	ListenAddr string

	// CORSOrigin is the allowed browser origin. Defaults to DefaultCORSOrigin.
	CORSOrigin string

	// LocalService disables bearer token authentication.
	LocalService bool

	// Verifier validates bearer tokens. Required unless LocalService is set.
	Verifier TokenVerifier

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler

	// Settings backs the /configuration routes. They are not registered
	// when nil.
	Settings SettingsStore
}

// TokenVerifier validates a bearer token. *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*jwt.RegisteredClaims, error)
}

// SettingsStore reads and persists the configuration file.
// *config.Configer satisfies it.
type SettingsStore interface {
	LoadConfig() (*config.Config, error)
	SetConfigValues(values map[string]string) error
}
