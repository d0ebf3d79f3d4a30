package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/swctl/internal/command"
	"firestige.xyz/swctl/internal/core"
)

var (
	fdbOverride  bool
	fdbFormat    string
	dynamicLimit int
)

var fdbCmd = &cobra.Command{
	Use:   "fdb",
	Short: "Manage the forwarding database",
	Long: `Manage the switch forwarding database.

Static entries are authored by the host and survive daemon restarts. Dynamic
entries are learned by the switch and can only be listed or flushed.

Port masks are comma separated port numbers, with "cpu" for the host port:
  swctl fdb add 01:00:5e:00:00:fb 1,2,cpu`,
}

var fdbAddCmd = &cobra.Command{
	Use:   "add <mac> <ports>",
	Short: "Add or replace a static entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mac, err := core.ParseMAC(args[0])
		if err != nil {
			return err
		}
		ports, err := core.ParsePortMask(args[1])
		if err != nil {
			return err
		}
		e := command.FdbEntryParams{MAC: mac, Ports: ports, Override: fdbOverride}
		return runFdbAdd(cmd.Context(), newClient(), cmd.OutOrStdout(), e)
	},
}

var fdbDelCmd = &cobra.Command{
	Use:   "del <mac>",
	Short: "Delete a static entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mac, err := core.ParseMAC(args[0])
		if err != nil {
			return err
		}
		return runFdbDel(cmd.Context(), newClient(), cmd.OutOrStdout(), mac)
	},
}

var fdbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List static entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFdbList(cmd.Context(), newClient(), cmd.OutOrStdout(), command.MethodFdbList, nil, fdbFormat)
	},
}

var fdbFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove every static entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimple(cmd.Context(), newClient(), cmd.OutOrStdout(), command.MethodFdbFlush, nil, "static entries flushed")
	},
}

var fdbDynamicCmd = &cobra.Command{
	Use:   "dynamic",
	Short: "Inspect learned entries",
}

var fdbDynamicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := command.DynamicParams{Limit: dynamicLimit}
		return runFdbList(cmd.Context(), newClient(), cmd.OutOrStdout(), command.MethodDynamicList, params, fdbFormat)
	},
}

var fdbDynamicFlushCmd = &cobra.Command{
	Use:   "flush [port]",
	Short: "Remove learned entries, of one port or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params command.DynamicParams
		msg := "learned entries flushed"
		if len(args) == 1 {
			p, err := parsePort(args[0])
			if err != nil {
				return err
			}
			params.Port = p
			msg = fmt.Sprintf("learned entries of port %d flushed", p)
		}
		return runSimple(cmd.Context(), newClient(), cmd.OutOrStdout(), command.MethodDynamicFlush, params, msg)
	},
}

func init() {
	fdbAddCmd.Flags().BoolVar(&fdbOverride, "override", false, "forward even to ports that are not forwarding")
	fdbCmd.PersistentFlags().StringVarP(&fdbFormat, "output", "o", formatTable, "output format (table, json, yaml)")
	fdbDynamicListCmd.Flags().IntVarP(&dynamicLimit, "limit", "n", 0, "stop after this many entries (0 = all)")

	fdbDynamicCmd.AddCommand(fdbDynamicListCmd, fdbDynamicFlushCmd)
	fdbCmd.AddCommand(fdbAddCmd, fdbDelCmd, fdbListCmd, fdbFlushCmd, fdbDynamicCmd)
}

func runFdbAdd(ctx context.Context, c Client, out io.Writer, e command.FdbEntryParams) error {
	if err := c.Do(ctx, command.MethodFdbAdd, e, nil); err != nil {
		return fmt.Errorf("add %s: %w", e.MAC, err)
	}
	fmt.Fprintf(out, "✓ %s -> %s\n", e.MAC, e.Ports)
	return nil
}

func runFdbDel(ctx context.Context, c Client, out io.Writer, mac core.MAC) error {
	if err := c.Do(ctx, command.MethodFdbDel, command.FdbEntryParams{MAC: mac}, nil); err != nil {
		return fmt.Errorf("delete %s: %w", mac, err)
	}
	fmt.Fprintf(out, "✓ %s deleted\n", mac)
	return nil
}

func runFdbList(ctx context.Context, c Client, out io.Writer, method string, params interface{}, format string) error {
	var list command.EntryList
	if err := c.Do(ctx, method, params, &list); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return render(out, format, list, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "MAC\tPORTS\tSOURCE\tOVERRIDE")
		for _, e := range list.Entries {
			src := "-"
			if e.SrcPort != 0 {
				src = fmt.Sprint(e.SrcPort)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", e.MAC, e.DestPorts, src, e.Override)
		}
		fmt.Fprintf(w, "(%d entries)\n", list.Count)
	})
}

func runSimple(ctx context.Context, c Client, out io.Writer, method string, params interface{}, done string) error {
	if err := c.Do(ctx, method, params, nil); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	fmt.Fprintf(out, "✓ %s\n", done)
	return nil
}
