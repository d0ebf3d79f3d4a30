package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"firestige.xyz/swctl/internal/command"
	"firestige.xyz/swctl/internal/core"
)

var mgmtPorts string

var mgmtCmd = &cobra.Command{
	Use:   "mgmt",
	Short: "Switch management features",
	Long: `Toggle switch management features. Chips that lack a feature report it
as unsupported.`,
}

// toggleCmd builds an "on|off" subcommand for method.
func toggleCmd(use, short, method string, withPorts bool) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " on|off",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enable, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			params := command.ToggleParams{Enable: enable}
			if withPorts {
				if params.Ports, err = core.ParsePortMask(mgmtPorts); err != nil {
					return err
				}
			}
			return runToggle(cmd.Context(), newClient(), cmd.OutOrStdout(), use, method, params)
		},
	}
	if withPorts {
		c.Flags().StringVar(&mgmtPorts, "ports", "", "ports receiving the frames, e.g. 1,2,cpu")
	}
	return c
}

var mgmtAgingCmd = &cobra.Command{
	Use:   "aging <seconds>",
	Short: "Set the aging period of learned entries (0 disables aging)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sec, err := strconv.Atoi(args[0])
		if err != nil || sec < 0 {
			return fmt.Errorf("invalid aging period %q", args[0])
		}
		return runAging(cmd.Context(), newClient(), cmd.OutOrStdout(), sec)
	},
}

func init() {
	mgmtCmd.AddCommand(
		toggleCmd("igmp", "IGMP snooping", command.MethodMgmtIgmp, false),
		toggleCmd("mld", "MLD snooping", command.MethodMgmtMld, false),
		toggleCmd("unknown-mcast", "Forward unknown multicast to a fixed port set", command.MethodMgmtUnknownMcast, true),
		toggleCmd("unknown-ucast", "Forward unknown unicast to a fixed port set", command.MethodMgmtUnknownUcast, true),
		toggleCmd("rsvd-mcast", "Trap IEEE reserved multicast (01:80:c2:00:00:0x) to the host", command.MethodMgmtReservedMcast, false),
		mgmtAgingCmd,
	)
}

func runToggle(ctx context.Context, c Client, out io.Writer, name, method string, p command.ToggleParams) error {
	if err := c.Do(ctx, method, p, nil); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Fprintf(out, "✓ %s %s\n", name, onOff(p.Enable))
	return nil
}

func runAging(ctx context.Context, c Client, out io.Writer, sec int) error {
	if err := c.Do(ctx, command.MethodMgmtAging, command.AgingParams{Seconds: sec}, nil); err != nil {
		return fmt.Errorf("aging: %w", err)
	}
	fmt.Fprintf(out, "✓ aging %ds\n", sec)
	return nil
}
