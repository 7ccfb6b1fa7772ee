package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewDevicesCommand creates the devices command.
func NewDevicesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Query the gateway and list its devices",
		Long: `Fetch the device list from the gateway and print it in gateway order.

Example:
  gatewayctl devices
  gatewayctl devices -c /etc/gatewayctl/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			devices, err := a.directory.Devices(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "retrieving devices", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Retrieved %d devices\n", len(devices))

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tNAME")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Type, d.Name)
			}
			return tw.Flush()
		},
	}
}
