package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tana-helper/pkg/cliui"
	"github.com/papercomputeco/tana-helper/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays all configuration keys and their current values from the
config.toml file stored in the .tana_helper/ directory. Secret values are
masked unless --show-secrets is given.

Examples:
  tanahelper config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir, showSecrets)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secret values in clear text")

	return cmd
}

func runList(w io.Writer, configDir string, showSecrets bool) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Using config file: %s\n\n", cliui.DimStyle.Render(cfger.GetTarget()))

	keys := config.ValidConfigKeys()
	values := config.Values(cfg, showSecrets)

	// Find the longest key name for alignment.
	maxLen := 0
	for _, k := range keys {
		if len(k) > maxLen {
			maxLen = len(k)
		}
	}

	for _, key := range keys {
		name := cliui.KeyStyle.Render(fmt.Sprintf("%-*s", maxLen, key))
		value := values[key]
		if value == "" {
			fmt.Fprintf(w, "%s = %s\n", name, cliui.DimStyle.Render("<not set>"))
		} else {
			fmt.Fprintf(w, "%s = %s\n", name, cliui.ValueStyle.Render(fmt.Sprintf("%q", value)))
		}
	}

	return nil
}
