package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatewayctl/internal/scene"
)

// NewAllCommand creates the all command.
func NewAllCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "all <on|off>",
		Short: "Switch every device on or off",
		Long: `Switch every switch and dimmer on or off. Devices already in the target
state are skipped and the result is verified afterwards.

Exits 1 when the run did not fully succeed.

Example:
  gatewayctl all on
  gatewayctl all off --mode fire_and_forget`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := parseState(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			name := scene.Name(state, 0)
			exec, err := a.orchestrator.ApplyAll(cmd.Context(), name, state)
			return reportExecution(cmd, name, exec, err)
		},
	}
}

// NewFirstCommand creates the first command.
func NewFirstCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "first <n> <on|off>",
		Short: "Switch the first n devices on or off",
		Long: `Switch the first n devices in gateway order on or off, without pre-check
or verification. n larger than the device count selects every device.

Example:
  gatewayctl first 10 on`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid device count %q: must be a positive integer", args[0]))
			}
			state, err := parseState(args[1])
			if err != nil {
				return err
			}

			a, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			name := scene.Name(state, n)
			exec, err := a.orchestrator.ApplyFirstN(cmd.Context(), name, state, n)
			return reportExecution(cmd, name, exec, err)
		},
	}
}

// reportExecution prints the run summary and maps the result to an exit code.
func reportExecution(cmd *cobra.Command, name string, exec *scene.Execution, err error) error {
	printExecution(cmd.OutOrStdout(), name, exec)
	if err != nil {
		return WrapExitError(ExitCommandError, name+" aborted", err)
	}
	if exec == nil || !exec.Success {
		return NewExitError(ExitFailure, name+" did not fully succeed")
	}
	return nil
}

// parseState accepts on/off and the usual boolean spellings.
func parseState(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, NewExitError(ExitCommandError, fmt.Sprintf("invalid state %q: must be on or off", s))
	}
}
