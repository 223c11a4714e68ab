package cmd

import (
	"fmt"
	"os"

	"stemdeck/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stemdeck",
	Short: "stemdeck is a multi-stem backing track playback engine.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
