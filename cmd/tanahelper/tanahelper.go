// Package tanahelpercmder is the root tanahelper command.
package tanahelpercmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/tana-helper/cmd/tanahelper/config"
	servecmder "github.com/papercomputeco/tana-helper/cmd/tanahelper/serve"
	versioncmder "github.com/papercomputeco/tana-helper/cmd/version"
)

const tanaHelperLongDesc string = `tana-helper connects Tana to an embedding provider and a vector store.

Tana API commands call the server to index nodes and find semantically
similar ones:
  tanahelper serve                  Run the API server
  tanahelper config set <key> <v>   Persist a setting
  tanahelper config list            Show settings`

const tanaHelperShortDesc string = "tana-helper - semantic search for Tana"

func NewTanaHelperCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tanahelper",
		Short:        tanaHelperShortDesc,
		Long:         tanaHelperLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.tana_helper or ~/.tana_helper)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
