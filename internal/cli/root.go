// Package cli implements the FleetDeck command-line interface using Cobra.
// Subcommands either start the daemon (serve) or read its persisted state
// directly from the data directory.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fleetdeck",
	Short: "FleetDeck — orchestrate tasks across a fleet of Android devices",
	Long: `FleetDeck tracks shell, install, bugreport, screen capture and file
transfer tasks across many connected devices at once, coalescing their
output streams and keeping a bounded, crash-safe task history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
