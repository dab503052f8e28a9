package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "uevmon",
	Short: "Monitor device events from the kernel or the udev daemon",
	Long: `uevmon subscribes to the kernel's device event netlink channel, or to
the stream the udev daemon rebroadcasts after rule processing, and prints
one line per event. Subsystem, devtype, and tag matches are offloaded into
the kernel as a socket filter.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
