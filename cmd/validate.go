package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/config"
	"firestige.xyz/swctl/internal/tailtag"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file (--config) the way the daemon does and check
that the configured chip is supported and reachable over the configured
transport. Nothing is opened or written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), configFile)
	},
}

func runValidate(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	sw := cfg.Switch
	drv, err := chip.Lookup(sw.Chip)
	if err != nil {
		return fmt.Errorf("INVALID: %w (supported: %v)", err, chip.Names())
	}
	if sw.Transport.Type != "sim" && string(drv.Bus) != sw.Transport.Type {
		return fmt.Errorf("INVALID: chip %s is managed over %s, not %s", drv.Name, drv.Bus, sw.Transport.Type)
	}
	codec, err := tailtag.ForChip(sw.Chip)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	fmt.Fprintf(out, "VALID: %s over %s, %d-byte tail tag, bindings: %d, static entries: %d\n",
		drv.Name, sw.Transport.Type, codec.Width(), len(sw.Bindings), len(cfg.StaticFdb))
	return nil
}
