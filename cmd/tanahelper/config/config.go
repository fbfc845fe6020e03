// Package configcmder provides the config command for managing persistent
// tana-helper configuration stored in the .tana_helper/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent tana-helper configuration.

Configuration is stored as config.toml in the .tana_helper/ directory and
provides default values for command flags. CLI flags and environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example
server.port, embedding.model, vector_store.provider, translator.default_top.

Use subcommands to get, set, or list configuration values:
  tanahelper config set <key> <value>    Set a configuration value
  tanahelper config get <key>            Get a configuration value
  tanahelper config list                 List all configuration values

Examples:
  tanahelper config set vector_store.provider qdrant
  tanahelper config set embedding.api_key sk-...
  tanahelper config get vector_store.index
  tanahelper config list --show-secrets`

const configShortDesc string = "Manage persistent tana-helper configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
