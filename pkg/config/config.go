package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/tana-helper/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0

	maskedValue = "********"
)

// Configer reads and writes config.toml in the resolved .tana_helper/ directory.
type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in section order.
func ValidConfigKeys() []string {
	return append([]string(nil), orderedKeys...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return configKeys[key].secret
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target directory. Fields missing
// from the file, or a missing file, keep their NewDefaultConfig values.
func (c *Configer) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfigTOML(data)
}

// SaveConfig persists the configuration to config.toml with 0600
// permissions, since it may hold API keys.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	return c.SetConfigValues(map[string]string{key: value})
}

// SetConfigValues applies every key/value pair and saves once. Nothing is
// written if any key is unknown or any value is invalid.
func (c *Configer) SetConfigValues(values map[string]string) error {
	for key := range values {
		if !IsValidConfigKey(key) {
			return fmt.Errorf("unknown config key: %q", key)
		}
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	for key, value := range values {
		if err := configKeys[key].set(cfg, value); err != nil {
			return err
		}
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// Values returns every key of cfg as a string. Secret values that are set
// are masked unless showSecrets is true.
func Values(cfg *Config, showSecrets bool) map[string]string {
	out := make(map[string]string, len(configKeys))
	for key, info := range configKeys {
		v := info.get(cfg)
		if info.secret && v != "" && !showSecrets {
			v = maskedValue
		}
		out[key] = v
	}
	return out
}

// Validate reports every required key that cfg leaves empty for its
// selected providers.
func Validate(cfg *Config) error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	if !cfg.Server.LocalService {
		require("auth.domain", cfg.Auth.Domain)
		require("auth.audience", cfg.Auth.Audience)
	}

	if cfg.Embedding.Provider == "openai" {
		require("embedding.api_key", cfg.Embedding.APIKey)
	}

	switch cfg.VectorStore.Provider {
	case "pinecone":
		require("vector_store.api_key", cfg.VectorStore.APIKey)
		require("vector_store.index", cfg.VectorStore.Index)
	case "chroma":
		require("vector_store.target", cfg.VectorStore.Target)
	case "sqlitevec":
		require("vector_store.sqlite_path", cfg.VectorStore.SQLitePath)
	}

	if cfg.Events.Provider == "kafka" {
		require("events.brokers", cfg.Events.Brokers)
		require("events.topic", cfg.Events.Topic)
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	if cfg.Translator.DefaultTop < 1 {
		errs = append(errs, errors.New("translator.default_top must be at least 1"))
	}
	return errors.Join(errs...)
}

// ParseConfigTOML parses raw TOML bytes over the defaults.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
