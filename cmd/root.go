// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/swctl/internal/command"
	"firestige.xyz/swctl/internal/daemon"
)

var (
	// Global flags
	configFile string
	socketPath string
	timeout    time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "swctl",
	Short: "swctl - control plane for tail-tagged Ethernet switches",
	Long: `swctl manages small managed Ethernet switches (Microchip KSZ8463/8563/8795/
8863/8864, Marvell 88E6060) that sit behind a host MAC and mark frames with a
tail tag naming the ingress or egress port.

The daemon owns the switch: it identifies the chip, enables tail tagging,
tracks per-port link state and keeps the static forwarding table. The other
commands talk to a running daemon over its Unix Domain Socket.`,
	Version:       daemon.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/swctl/swctl.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/swctl.sock",
		"daemon socket path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"daemon request timeout")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(portCmd)
	rootCmd.AddCommand(fdbCmd)
	rootCmd.AddCommand(mgmtCmd)
	rootCmd.AddCommand(sniffCmd)
	rootCmd.AddCommand(validateCmd)
}

// Client is the daemon connection the commands need.
type Client interface {
	Do(ctx context.Context, method string, params, out interface{}) error
}

// newClient is replaced in tests.
var newClient = func() Client {
	return command.NewUDSClient(socketPath, timeout)
}
