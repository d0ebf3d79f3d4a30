package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/swctl/internal/config"
	"firestige.xyz/swctl/internal/tailtag"
	"firestige.xyz/swctl/internal/tap"
)

var (
	sniffInterface string
	sniffChip      string
	sniffCount     int
	sniffQuiet     bool
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Capture tail-tagged frames on the host interface",
	Long: `Capture frames on the host MAC interface, strip their tail tags and print
the switch port each frame entered on. A per-port summary is printed when
the capture ends (Ctrl-C or --count reached).

Interface and chip default to the tap and switch sections of the config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc := tap.Config{Interface: sniffInterface}
		chipName := sniffChip
		if cfg, err := config.Load(configFile); err == nil {
			tc = tap.Config{
				Interface:    cfg.Tap.Interface,
				SnapLen:      cfg.Tap.SnapLen,
				BufferSizeMB: cfg.Tap.BufferSizeMB,
				TimeoutMs:    cfg.Tap.TimeoutMs,
			}
			if sniffInterface != "" {
				tc.Interface = sniffInterface
			}
			if chipName == "" {
				chipName = cfg.Switch.Chip
			}
		}
		if tc.Interface == "" || chipName == "" {
			return fmt.Errorf("--interface and --chip are required without a config file")
		}

		codec, err := tailtag.ForChip(chipName)
		if err != nil {
			return err
		}
		t, err := tap.Open(tc, codec)
		if err != nil {
			return fmt.Errorf("open %s: %w", tc.Interface, err)
		}
		defer t.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSniff(ctx, t, cmd.OutOrStdout(), sniffCount, sniffQuiet)
	},
}

func init() {
	sniffCmd.Flags().StringVarP(&sniffInterface, "interface", "i", "", "host MAC interface")
	sniffCmd.Flags().StringVar(&sniffChip, "chip", "", "switch chip, selects the tag layout")
	sniffCmd.Flags().IntVarP(&sniffCount, "count", "n", 0, "stop after this many frames (0 = until interrupted)")
	sniffCmd.Flags().BoolVarP(&sniffQuiet, "quiet", "q", false, "print only the summary")
}

// frameSource is the capture the sniff command reads from.
type frameSource interface {
	Run(ctx context.Context, fn func(tap.Frame)) error
	Decoder() *tap.Decoder
}

func runSniff(ctx context.Context, src frameSource, out io.Writer, count int, quiet bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seen := 0
	err := src.Run(ctx, func(f tap.Frame) {
		if !quiet {
			fmt.Fprintln(out, f.Summary())
		}
		seen++
		if count > 0 && seen >= count {
			cancel()
		}
	})
	printSniffSummary(out, src.Decoder())
	return err
}

func printSniffSummary(out io.Writer, d *tap.Decoder) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tFRAMES")
	for _, c := range d.Counts() {
		fmt.Fprintf(w, "%d\t%d\n", c.Port, c.Frames)
	}
	errs := d.Errors()
	reasons := make([]string, 0, len(errs))
	for r := range errs {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "dropped (%s)\t%d\n", r, errs[r])
	}
	w.Flush()
}
