package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/swctl/internal/command"
	"firestige.xyz/swctl/internal/controller"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show switch status",
	Long: `Query the daemon for the switch state: chip, controller state, aggregate
link, per-port state and link, and the management toggles.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), newClient(), cmd.OutOrStdout(), statusFormat)
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "output", "o", formatTable, "output format (table, json, yaml)")
}

func runStatus(ctx context.Context, c Client, out io.Writer, format string) error {
	var st controller.Status
	if err := c.Do(ctx, command.MethodSwitchStatus, nil, &st); err != nil {
		return fmt.Errorf("switch_status failed: %w", err)
	}
	return render(out, format, st, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Chip:\t%s\n", st.Chip)
		fmt.Fprintf(w, "State:\t%s\n", st.State)
		link := st.Link
		if st.HostSpeed != "" {
			link += " (" + st.HostSpeed + ")"
		}
		fmt.Fprintf(w, "Link:\t%s %s\n", st.Interface, link)
		fmt.Fprintf(w, "Static entries:\t%d\n", st.Statics)
		m := st.Mgmt
		fmt.Fprintf(w, "IGMP/MLD snooping:\t%s/%s\n", onOff(m.IgmpSnooping), onOff(m.MldSnooping))
		fmt.Fprintf(w, "Reserved multicast:\t%s\n", onOff(m.ReservedMcast))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "PORT\tINTERFACE\tSTATE\tLINK\tSPEED\tDUPLEX")
		for _, p := range st.Ports {
			iface := p.Interface
			if iface == "" {
				iface = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", p.Port, iface, p.State, p.Link, dash(p.Speed), dash(p.Duplex))
		}
	})
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
