package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/tana-helper/pkg/dotdir"
)

// envPrefix prefixes every environment variable bound by InitViper.
const envPrefix = "TANA_HELPER"

// envAliases binds the environment names that earlier tana-helper releases
// read, so existing .env files keep working. The prefixed name wins.
var envAliases = map[string][]string{
	"server.port":              {"PORT"},
	"server.local_service":     {"LOCAL_SERVICE"},
	"auth.domain":              {"AUTH0_DOMAIN"},
	"auth.audience":            {"AUTH0_AUDIENCE"},
	"embedding.api_key":        {"OPENAI_API_KEY"},
	"embedding.model":          {"OPENAI_EMBEDDING_MODEL"},
	"vector_store.api_key":     {"PINECONE_API_KEY"},
	"vector_store.environment": {"PINECONE_ENVIRONMENT"},
	"vector_store.index":       {"PINECONE_INDEX"},
}

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the TANA_HELPER_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (TANA_HELPER_SERVER_PORT, then PORT, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{EnvName(key)}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	return v, nil
}

// FromViper resolves every config key through v's precedence chain.
// Keys that resolve to an empty string keep their default.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	for _, key := range orderedKeys {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		if err := configKeys[key].set(cfg, s); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// EnvName returns the prefixed environment variable bound to key.
func EnvName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.local_service", d.Server.LocalService)
	v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	v.SetDefault("server.verbose_logging", d.Server.VerboseLogging)

	// Auth
	v.SetDefault("auth.domain", d.Auth.Domain)
	v.SetDefault("auth.audience", d.Auth.Audience)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.api_key", d.VectorStore.APIKey)
	v.SetDefault("vector_store.environment", d.VectorStore.Environment)
	v.SetDefault("vector_store.index", d.VectorStore.Index)
	v.SetDefault("vector_store.namespace", d.VectorStore.Namespace)
	v.SetDefault("vector_store.category", d.VectorStore.Category)
	v.SetDefault("vector_store.dimensions", d.VectorStore.Dimensions)
	v.SetDefault("vector_store.sqlite_path", d.VectorStore.SQLitePath)

	// Translator
	v.SetDefault("translator.default_score", d.Translator.DefaultScore)
	v.SetDefault("translator.default_top", d.Translator.DefaultTop)
	v.SetDefault("translator.enable_tag_filter", d.Translator.EnableTagFilter)

	// MCP
	v.SetDefault("mcp.enabled", d.MCP.Enabled)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
