package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatewayctl/internal/device"
	"github.com/nerrad567/gatewayctl/internal/scene"
)

const (
	menuTestConnection = 0
	menuExit           = 11
)

// menuFirstN maps options 3-10 to device counts; odd options turn devices on.
var menuFirstN = [...]int{5, 5, 10, 10, 15, 15, 20, 20}

var menuLines = []string{
	"0. Test Connection and Get All Devices",
	"1. Turn All On",
	"2. Turn All Off",
	"3. Turn First 5 Devices On",
	"4. Turn First 5 Devices Off",
	"5. Turn First 10 Devices On",
	"6. Turn First 10 Devices Off",
	"7. Turn First 15 Devices On",
	"8. Turn First 15 Devices Off",
	"9. Turn First 20 Devices On",
	"10. Turn First 20 Devices Off",
	"11. Exit",
}

// menuChoices maps each accepted option string to its number. Only the
// canonical form is accepted, so "01" or "+1" are invalid.
var menuChoices = func() map[string]int {
	m := make(map[string]int, len(menuLines))
	for i := range menuLines {
		m[strconv.Itoa(i)] = i
	}
	return m
}()

// DeviceLister returns the device list.
type DeviceLister interface {
	Devices(ctx context.Context) ([]device.Device, error)
}

// SceneRunner applies whole-fleet and first-N scenes.
type SceneRunner interface {
	ApplyAll(ctx context.Context, name string, state bool) (*scene.Execution, error)
	ApplyFirstN(ctx context.Context, name string, state bool, n int) (*scene.Execution, error)
}

// Menu is the numbered interactive menu.
type Menu struct {
	devices DeviceLister
	scenes  SceneRunner
	in      io.Reader
	out     io.Writer
	logger  Logger
}

// Logger is the logging interface used by the menu.
type Logger interface {
	Error(msg string, args ...any)
}

// NewMenu creates a menu reading choices from in and printing to out.
func NewMenu(devices DeviceLister, scenes SceneRunner, in io.Reader, out io.Writer, logger Logger) *Menu {
	return &Menu{devices: devices, scenes: scenes, in: in, out: out, logger: logger}
}

// NewMenuCommand creates the menu command.
func NewMenuCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Open the numbered interactive menu",
		Long: `Open the numbered interactive menu. This is also what runs when gatewayctl
is started without a subcommand.

Each action prints its elapsed time and whether it fully succeeded.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd, rootOpts)
		},
	}
}

func runMenu(cmd *cobra.Command, opts *RootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	m := NewMenu(a.directory, a.orchestrator, cmd.InOrStdin(), cmd.OutOrStdout(), a.logger.Component("menu"))
	return m.Run(cmd.Context())
}

// Run loops until the exit option is chosen, input ends or ctx is cancelled.
func (m *Menu) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(m.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprintln(m.out, "\nPlease select an option:")
		for _, line := range menuLines {
			fmt.Fprintln(m.out, line)
		}
		fmt.Fprint(m.out, "Enter your choice (0-11): ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(m.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(m.out)
				return nil
			}
			line = l
		}

		choice, ok := menuChoices[strings.TrimSpace(line)]
		if !ok {
			fmt.Fprintln(m.out, "Invalid option, please try again")
			continue
		}
		if m.handle(ctx, choice) {
			return nil
		}
	}
}

// handle runs one menu choice and reports whether the menu should exit.
func (m *Menu) handle(ctx context.Context, choice int) bool {
	switch {
	case choice == menuTestConnection:
		devices, err := m.devices.Devices(ctx)
		if err != nil {
			m.logger.Error("retrieving devices failed", "error", err)
		}
		fmt.Fprintf(m.out, "Retrieved %d devices\n", len(devices))
	case choice == 1 || choice == 2:
		state := choice == 1
		name := scene.Name(state, 0)
		exec, _ := m.scenes.ApplyAll(ctx, name, state)
		printExecution(m.out, name, exec)
	case choice >= 3 && choice <= 10:
		n := menuFirstN[choice-3]
		state := choice%2 == 1
		name := scene.Name(state, n)
		exec, _ := m.scenes.ApplyFirstN(ctx, name, state, n)
		printExecution(m.out, name, exec)
	case choice == menuExit:
		fmt.Fprintln(m.out, "Exiting program")
		return true
	default:
		fmt.Fprintln(m.out, "Invalid option, please try again")
	}
	return false
}
