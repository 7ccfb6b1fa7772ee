package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatewayctl/internal/dispatch"
)

// DefaultConfigPath is used when neither --config nor GATEWAYCTL_CONFIG is set.
const DefaultConfigPath = "configs/config.yaml"

// ConfigEnvVar names the environment variable that selects the config file.
const ConfigEnvVar = "GATEWAYCTL_CONFIG"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Mode       string // overrides dispatch.mode when set
	Version    string
}

// NewRootCommand creates the root command for the gatewayctl CLI.
// Running it without a subcommand opens the interactive menu.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:     "gatewayctl",
		Short:   "Bulk on/off control for a smart-home gateway",
		Long:    "Drive every switch and dimmer behind a smart-home gateway through batched, bounded-concurrency command dispatch.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Mode != "" {
				if _, err := dispatch.ParseMode(opts.Mode); err != nil {
					return WrapExitError(ExitCommandError, "invalid --mode", err)
				}
			}
			return nil
		},
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd, opts)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfigPath(),
		fmt.Sprintf("path to config file (env %s)", ConfigEnvVar))
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.Mode, "mode", "", "override dispatch mode (confirmed|fire_and_forget)")

	// Add subcommands
	cmd.AddCommand(NewMenuCommand(opts))
	cmd.AddCommand(NewDevicesCommand(opts))
	cmd.AddCommand(NewAllCommand(opts))
	cmd.AddCommand(NewFirstCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func defaultConfigPath() string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	return DefaultConfigPath
}
