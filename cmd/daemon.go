package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/swctl/internal/daemon"
)

var pidFile string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the swctl daemon in foreground",
	Long: `Run the swctl daemon process in foreground.

The daemon will:
  1. Load the configuration and initialize logging and metrics
  2. Open the switch over its management bus and wait for identification
  3. Enable tail tagging, set port states and replay static entries
  4. Poll link state and keep the host interfaces in sync
  5. Serve CLI requests on the Unix Domain Socket
  6. Handle SIGTERM/SIGINT for graceful shutdown and SIGHUP for reload`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New(configFile, socketFlag(cmd), pidFile)
		if err != nil {
			return err
		}
		if err := d.Start(); err != nil {
			d.Stop()
			return fmt.Errorf("failed to start daemon: %w", err)
		}
		return d.Run()
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := pidFile
		if path == "" {
			path = "/var/run/swctl.pid"
		}
		if err := daemon.StopDaemon(path, 10*time.Second); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ daemon stopped")
		return nil
	},
}

func init() {
	daemonCmd.PersistentFlags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (default: control.pid_file from the config)")
	daemonCmd.AddCommand(daemonStopCmd)
}

// socketFlag returns the --socket value only when it was set explicitly,
// so the daemon otherwise uses control.socket from its config.
func socketFlag(cmd *cobra.Command) string {
	if cmd.Flags().Changed("socket") {
		return socketPath
	}
	return ""
}
