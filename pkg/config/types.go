package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent tana-helper configuration stored as
// config.toml in the .tana_helper/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Server      ServerConfig      `toml:"server"`
	Auth        AuthConfig        `toml:"auth"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Translator  TranslatorConfig  `toml:"translator"`
	MCP         MCPConfig         `toml:"mcp"`
	Events      EventsConfig      `toml:"events"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host,omitempty"`
	Port uint   `toml:"port,omitempty"`

	// LocalService disables bearer token authentication.
	LocalService bool `toml:"local_service"`

	CORSOrigin     string `toml:"cors_origin,omitempty"`
	VerboseLogging bool   `toml:"verbose_logging"`
}

// Listen returns the host:port address to bind.
func (s ServerConfig) Listen() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig identifies the token issuer used when not running locally.
type AuthConfig struct {
	Domain   string `toml:"domain,omitempty"`
	Audience string `toml:"audience,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider    string `toml:"provider,omitempty"`
	Target      string `toml:"target,omitempty"`
	APIKey      string `toml:"api_key,omitempty"`
	Environment string `toml:"environment,omitempty"`
	Index       string `toml:"index,omitempty"`
	Namespace   string `toml:"namespace,omitempty"`
	Category    string `toml:"category,omitempty"`
	Dimensions  uint   `toml:"dimensions,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
}

// TranslatorConfig holds request translation defaults and flags.
type TranslatorConfig struct {
	DefaultScore    float64 `toml:"default_score"`
	DefaultTop      int     `toml:"default_top,omitempty"`
	EnableTagFilter bool    `toml:"enable_tag_filter"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// EventsConfig holds record event stream settings.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of broker addresses.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// BrokerList splits Brokers into addresses.
func (e EventsConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error

	// secret values are masked when configuration is displayed.
	secret bool
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func secretKey(field func(c *Config) *string) configKeyInfo {
	info := stringKey(field)
	info.secret = true
	return info
}

func boolKey(key string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func uintKey(key string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatUint(uint64(*field(c)), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.host":            stringKey(func(c *Config) *string { return &c.Server.Host }),
	"server.port":            uintKey("server.port", func(c *Config) *uint { return &c.Server.Port }),
	"server.local_service":   boolKey("server.local_service", func(c *Config) *bool { return &c.Server.LocalService }),
	"server.cors_origin":     stringKey(func(c *Config) *string { return &c.Server.CORSOrigin }),
	"server.verbose_logging": boolKey("server.verbose_logging", func(c *Config) *bool { return &c.Server.VerboseLogging }),

	"auth.domain":   stringKey(func(c *Config) *string { return &c.Auth.Domain }),
	"auth.audience": stringKey(func(c *Config) *string { return &c.Auth.Audience }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.api_key":  secretKey(func(c *Config) *string { return &c.Embedding.APIKey }),

	"vector_store.provider":    stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":      stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.api_key":     secretKey(func(c *Config) *string { return &c.VectorStore.APIKey }),
	"vector_store.environment": stringKey(func(c *Config) *string { return &c.VectorStore.Environment }),
	"vector_store.index":       stringKey(func(c *Config) *string { return &c.VectorStore.Index }),
	"vector_store.namespace":   stringKey(func(c *Config) *string { return &c.VectorStore.Namespace }),
	"vector_store.category":    stringKey(func(c *Config) *string { return &c.VectorStore.Category }),
	"vector_store.dimensions":  uintKey("vector_store.dimensions", func(c *Config) *uint { return &c.VectorStore.Dimensions }),
	"vector_store.sqlite_path": stringKey(func(c *Config) *string { return &c.VectorStore.SQLitePath }),

	"translator.default_score": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Translator.DefaultScore, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for translator.default_score: %w", err)
			}
			c.Translator.DefaultScore = f
			return nil
		},
	},
	"translator.default_top": {
		get: func(c *Config) string { return strconv.Itoa(c.Translator.DefaultTop) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return fmt.Errorf("invalid value for translator.default_top: %q must be a whole number of at least 1", v)
			}
			c.Translator.DefaultTop = n
			return nil
		},
	},
	"translator.enable_tag_filter": boolKey("translator.enable_tag_filter", func(c *Config) *bool { return &c.Translator.EnableTagFilter }),

	"mcp.enabled": boolKey("mcp.enabled", func(c *Config) *bool { return &c.MCP.Enabled }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),
}

// orderedKeys lists configKeys in the TOML section layout order.
var orderedKeys = []string{
	"server.host",
	"server.port",
	"server.local_service",
	"server.cors_origin",
	"server.verbose_logging",
	"auth.domain",
	"auth.audience",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.api_key",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.api_key",
	"vector_store.environment",
	"vector_store.index",
	"vector_store.namespace",
	"vector_store.category",
	"vector_store.dimensions",
	"vector_store.sqlite_path",
	"translator.default_score",
	"translator.default_top",
	"translator.enable_tag_filter",
	"mcp.enabled",
	"events.provider",
	"events.brokers",
	"events.topic",
}
