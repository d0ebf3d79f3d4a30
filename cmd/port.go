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

var portCmd = &cobra.Command{
	Use:   "port",
	Short: "Read or change a port's spanning tree state",
}

var portGetCmd = &cobra.Command{
	Use:   "get <port>",
	Short: "Show the state of a port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePort(args[0])
		if err != nil {
			return err
		}
		return runPortGet(cmd.Context(), newClient(), cmd.OutOrStdout(), p)
	},
}

var portSetCmd = &cobra.Command{
	Use:   "set <port> <state>",
	Short: "Set the state of a port",
	Long: `Set a port to disabled, listening, learning or forwarding. Blocking is
reported by the hardware but cannot be requested.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePort(args[0])
		if err != nil {
			return err
		}
		st, err := core.ParsePortState(args[1])
		if err != nil {
			return err
		}
		return runPortSet(cmd.Context(), newClient(), cmd.OutOrStdout(), p, st)
	},
}

func init() {
	portCmd.AddCommand(portGetCmd, portSetCmd)
}

func parsePort(s string) (core.PortID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return core.PortID(n), nil
}

func runPortGet(ctx context.Context, c Client, out io.Writer, p core.PortID) error {
	var res command.PortParams
	if err := c.Do(ctx, command.MethodPortGet, command.PortParams{Port: p}, &res); err != nil {
		return fmt.Errorf("port %d: %w", p, err)
	}
	fmt.Fprintf(out, "port %d: %s\n", res.Port, res.State)
	return nil
}

func runPortSet(ctx context.Context, c Client, out io.Writer, p core.PortID, st core.PortState) error {
	if err := c.Do(ctx, command.MethodPortSet, command.PortParams{Port: p, State: st}, nil); err != nil {
		return fmt.Errorf("port %d: %w", p, err)
	}
	fmt.Fprintf(out, "✓ port %d set to %s\n", p, st)
	return nil
}
